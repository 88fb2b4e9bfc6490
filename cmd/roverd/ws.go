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
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"sync"

	"github.com/Comcast/rover/dispatch"
	"github.com/Comcast/rover/sio"
	"github.com/Comcast/rover/tools"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"
)

// WebSocketCouplings is an sio.Couplings for a WebSocket server.
//
// Each text frame from any client is one message.  Emitted messages
// go to all clients.
type WebSocketCouplings struct {
	Addr      string
	StaticDir string
	MaxConns  int

	// Events, if not nil, provides the commands for /commands.
	// It must be set before Mux or Start.
	Events func() []dispatch.Event

	in   chan []byte
	out  chan *sio.Result
	done chan bool

	server *http.Server
	conns  sync.Map
}

func NewWebSocketCouplings(args []string) (*WebSocketCouplings, *flag.FlagSet) {
	c := &WebSocketCouplings{}
	fs := flag.NewFlagSet("ws", flag.ExitOnError)
	fs.StringVar(&c.Addr, "addr", ":8080", "Address for the WebSocket server")
	fs.StringVar(&c.StaticDir, "static", "", "Optional directory to serve at /")
	fs.IntVar(&c.MaxConns, "max-conns", 16, "Maximum simultaneous connections")
	if args == nil {
		return nil, fs
	}
	fs.Parse(args)
	return c, fs
}

// Mux makes the HTTP handlers.  Events is read once, here.
func (c *WebSocketCouplings) Mux(ctx context.Context) *http.ServeMux {
	var upgrader = websocket.Upgrader{} // use default options

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error", err)
			return
		}
		defer conn.Close()

		outbound := make(chan []byte, 32)
		id := conn.RemoteAddr().String()
		c.conns.Store(id, outbound)
		defer c.conns.Delete(id)

		ctl := make(chan bool)
		defer close(ctl)

		go func() {
		LOOP:
			for {
				select {
				case <-ctl:
					break LOOP
				case <-ctx.Done():
					break LOOP
				case js := <-outbound:
					if err := conn.WriteMessage(websocket.TextMessage, js); err != nil {
						log.Println("ws write:", err)
					}
				}
			}
		}()

		for {
			mt, bs, err := conn.ReadMessage()
			if err != nil {
				log.Println("ws read:", err)
				return
			}
			if mt != websocket.TextMessage {
				continue
			}
			if bs = sio.TrimEOL(bs); len(bs) == 0 {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case c.in <- bs:
			}
		}
	})

	provider := c.Events
	mux.HandleFunc("/commands", func(w http.ResponseWriter, r *http.Request) {
		var events []dispatch.Event
		if provider != nil {
			events = provider()
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tools.RenderCommandsPage("Commands", events, w, nil); err != nil {
			log.Printf("/commands: %s", err)
		}
	})

	if c.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(c.StaticDir)))
	}

	return mux
}

// broadcast sends the JSON to every client without blocking.
func (c *WebSocketCouplings) broadcast(js []byte) {
	c.conns.Range(func(k, v interface{}) bool {
		select {
		case v.(chan []byte) <- js:
		default:
			log.Printf("%v outbound blocked", k)
		}
		return true
	})
}

// Start starts the HTTP server and the out-bound loop.
func (c *WebSocketCouplings) Start(ctx context.Context) error {
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

	c.server = &http.Server{
		Handler: c.Mux(ctx),
	}

	go func() {
		log.Printf("WebSocket server on %s", l.Addr())
		if err := c.server.Serve(l); err != nil && err != http.ErrServerClosed {
			log.Printf("WebSocket server: %s", err)
		}
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-c.out:
				for _, msg := range r.Emitted {
					js, err := json.Marshal(&msg)
					if err != nil {
						log.Printf("ws marshal error %v on %#v", err, msg)
						continue
					}
					c.broadcast(js)
				}
			}
		}
	}()

	return nil
}

// IO just returns the channels that Start() initialized.
func (c *WebSocketCouplings) IO(ctx context.Context) (chan []byte, chan *sio.Result, chan bool, error) {
	return c.in, c.out, c.done, nil
}

// Stop shuts down the server.
func (c *WebSocketCouplings) Stop(ctx context.Context) error {
	log.Printf("Shutting down WebSocket server")
	close(c.done)
	if c.server != nil {
		return c.server.Shutdown(ctx)
	}
	return nil
}
