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
	"encoding/hex"
	"encoding/json"
	"flag"
	"io"
	"log"
	"time"

	"github.com/Comcast/rover/sio"

	"go.bug.st/serial"
)

// DefaultSerialTimeout ends a message that has no line ending.
const DefaultSerialTimeout = 20 * time.Millisecond

// maxPending bounds what a frame can accumulate.
const maxPending = 4096

// SerialCouplings is an sio.Couplings for a serial port.
//
// A message ends at a newline or when the port is quiet for Timeout
// with bytes pending.  Emitted "relay" text is written back followed
// by a newline, and emitted "frame" hex is written as raw bytes.
type SerialCouplings struct {
	Port     string
	BaudRate int
	Timeout  time.Duration

	// JSON writes other emitted messages as JSON lines.
	JSON bool

	port serial.Port

	in   chan []byte
	out  chan *sio.Result
	done chan bool
}

func NewSerialCouplings(args []string) (*SerialCouplings, *flag.FlagSet) {
	c := &SerialCouplings{}
	fs := flag.NewFlagSet("serial", flag.ExitOnError)
	fs.StringVar(&c.Port, "port", "/dev/ttyUSB0", "Serial port")
	fs.IntVar(&c.BaudRate, "baud", 115200, "Baud rate")
	fs.DurationVar(&c.Timeout, "timeout", DefaultSerialTimeout, "Quiet time that ends a message")
	fs.BoolVar(&c.JSON, "json", false, "Write other emitted messages as JSON lines")
	if args == nil {
		return nil, fs
	}
	fs.Parse(args)
	return c, fs
}

// Start opens the port and starts the IO loops.
func (c *SerialCouplings) Start(ctx context.Context) error {
	port, err := serial.Open(c.Port, &serial.Mode{
		BaudRate: c.BaudRate,
	})
	if err != nil {
		return err
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultSerialTimeout
	}
	if err = port.SetReadTimeout(c.Timeout); err != nil {
		port.Close()
		return err
	}
	c.port = port

	c.in = make(chan []byte)
	c.out = make(chan *sio.Result)
	c.done = make(chan bool)

	go func() {
		err := readFrames(ctx, port, func(msg []byte) bool {
			select {
			case <-ctx.Done():
				return false
			case c.in <- msg:
				return true
			}
		})
		if err != nil && err != io.EOF {
			log.Printf("serial read: %s", err)
		}
		close(c.done)
	}()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-c.out:
				for _, msg := range r.Emitted {
					bs := c.render(msg)
					if bs == nil {
						continue
					}
					if _, err := port.Write(bs); err != nil {
						log.Printf("serial write: %s", err)
					}
				}
			}
		}
	}()

	return nil
}

// render returns the bytes to write for an emitted message or nil.
func (c *SerialCouplings) render(msg interface{}) []byte {
	if m, is := msg.(map[string]interface{}); is {
		if s, is := m["relay"].(string); is {
			return append([]byte(s), '\n')
		}
		if s, is := m["frame"].(string); is {
			bs, err := hex.DecodeString(s)
			if err != nil {
				log.Printf("serial bad frame %q: %s", s, err)
				return nil
			}
			return bs
		}
	}
	if !c.JSON {
		return nil
	}
	js, err := json.Marshal(&msg)
	if err != nil {
		log.Printf("serial marshal error %v on %#v", err, msg)
		return nil
	}
	return append(js, '\n')
}

// readFrames reads messages from r until error or until forward
// returns false.
//
// A read that returns no bytes is a timeout, which ends any pending
// message.  A message that reaches maxPending is discarded along with
// the rest of its bytes up to the next boundary.
func readFrames(ctx context.Context, r io.Reader, forward func([]byte) bool) error {
	var (
		pending  = make([]byte, 0, 256)
		chunk    = make([]byte, 256)
		dropping bool
	)

	flush := func() bool {
		if dropping {
			dropping = false
			pending = pending[:0]
			return true
		}
		if len(pending) == 0 {
			return true
		}
		msg := sio.TrimEOL(pending)
		if len(msg) == 0 {
			pending = pending[:0]
			return true
		}
		msg = append([]byte(nil), msg...)
		pending = pending[:0]
		return forward(msg)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		n, err := r.Read(chunk)
		if n == 0 && err == nil {
			if !flush() {
				return nil
			}
			continue
		}
		for _, b := range chunk[:n] {
			if b == '\n' {
				if !flush() {
					return nil
				}
				continue
			}
			if dropping {
				continue
			}
			pending = append(pending, b)
			if maxPending <= len(pending) {
				log.Printf("serial: dropping frame longer than %d bytes", maxPending)
				pending = pending[:0]
				dropping = true
			}
		}
		if err != nil {
			flush()
			return err
		}
	}
}

// IO returns the channels.
func (c *SerialCouplings) IO(ctx context.Context) (chan []byte, chan *sio.Result, chan bool, error) {
	return c.in, c.out, c.done, nil
}

// Stop closes the port.
func (c *SerialCouplings) Stop(ctx context.Context) error {
	if c.port != nil {
		return c.port.Close()
	}
	return nil
}
