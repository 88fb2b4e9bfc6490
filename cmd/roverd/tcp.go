/* Copyright 2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"net"
	"strings"
	"sync"

	"github.com/Comcast/rover/sio"

	"golang.org/x/net/netutil"
)

// TCPCouplings is an sio.Couplings for a line-oriented TCP server.
//
// Each line from any client is one message.  Emitted messages are
// written as JSON lines to all clients.
type TCPCouplings struct {
	Addr     string
	MaxConns int

	in   chan []byte
	out  chan *sio.Result
	done chan bool

	l     net.Listener
	conns sync.Map
	wg    sync.WaitGroup
}

func NewTCPCouplings(args []string) (*TCPCouplings, *flag.FlagSet) {
	c := &TCPCouplings{}
	fs := flag.NewFlagSet("tcp", flag.ExitOnError)
	fs.StringVar(&c.Addr, "addr", ":8081", "Address for the TCP server")
	fs.IntVar(&c.MaxConns, "max-conns", 16, "Maximum simultaneous connections")
	if args == nil {
		return nil, fs
	}
	fs.Parse(args)
	return c, fs
}

// Start listens and starts the out-bound loop.
func (c *TCPCouplings) Start(ctx context.Context) error {
	c.in = make(chan []byte)
	c.out = make(chan *sio.Result)
	c.done = make(chan bool)

	l, err := net.Listen("tcp", c.Addr)
	if err != nil {
		return err
	}
	if 0 < c.MaxConns {
		l = netutil.LimitListener(l, c.MaxConns)
	}
	c.l = l
	log.Printf("TCP server on %s", l.Addr())

	go c.accept(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-c.out:
				for _, msg := range r.Emitted {
					js, err := json.Marshal(&msg)
					if err != nil {
						log.Printf("tcp marshal error %v on %#v", err, msg)
						continue
					}
					js = append(js, '\n')
					c.conns.Range(func(k, v interface{}) bool {
						if _, err := v.(net.Conn).Write(js); err != nil {
							log.Printf("tcp write to %v: %s", k, err)
						}
						return true
					})
				}
			}
		}
	}()

	return nil
}

func (c *TCPCouplings) accept(ctx context.Context) {
	for {
		conn, err := c.l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				log.Printf("TCP accept: %s", err)
			}
			return
		}

		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			id := conn.RemoteAddr().String()
			c.conns.Store(id, conn)
			defer c.conns.Delete(id)
			defer conn.Close()

			if err := c.listen(ctx, bufio.NewReader(conn)); err != nil && err != io.EOF {
				log.Printf("TCP %s: %s", id, err)
			}
		}()
	}
}

// listen forwards lines until EOF.
func (c *TCPCouplings) listen(ctx context.Context, in *bufio.Reader) error {
	for {
		line, err := in.ReadBytes('\n')
		if len(line) > 0 {
			line = sio.TrimEOL(line)
			sl := strings.TrimSpace(string(line))
			if sl != "" && !strings.HasPrefix(sl, "#") {
				select {
				case <-ctx.Done():
					return nil
				case c.in <- line:
				}
			}
		}
		if err != nil {
			return err
		}
	}
}

// IO returns the channels.
func (c *TCPCouplings) IO(ctx context.Context) (chan []byte, chan *sio.Result, chan bool, error) {
	return c.in, c.out, c.done, nil
}

// Stop closes the listener and all connections.
func (c *TCPCouplings) Stop(ctx context.Context) error {
	close(c.done)
	var err error
	if c.l != nil {
		err = c.l.Close()
	}
	c.conns.Range(func(k, v interface{}) bool {
		v.(net.Conn).Close()
		return true
	})
	c.wg.Wait()
	return err
}
