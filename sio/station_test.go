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

package sio

import (
	"context"
	"testing"
	"time"

	"github.com/Comcast/rover/buffer"
	"github.com/Comcast/rover/dispatch"
)

// chanCouplings is a Couplings made of plain channels.
type chanCouplings struct {
	in   chan []byte
	out  chan *Result
	done chan bool
}

func newChanCouplings() *chanCouplings {
	return &chanCouplings{
		in:   make(chan []byte),
		out:  make(chan *Result, 16),
		done: make(chan bool),
	}
}

func (c *chanCouplings) Start(ctx context.Context) error { return nil }
func (c *chanCouplings) Stop(ctx context.Context) error  { return nil }
func (c *chanCouplings) IO(ctx context.Context) (chan []byte, chan *Result, chan bool, error) {
	return c.in, c.out, c.done, nil
}

func newTestStation(t *testing.T, ctx context.Context, conf *StationConf, d *dispatch.Dispatcher) (*Station, *chanCouplings) {
	c := newChanCouplings()
	s, err := NewStation(ctx, conf, d, c)
	if err != nil {
		t.Fatal(err)
	}
	return s, c
}

func await(t *testing.T, c *chanCouplings) *Result {
	select {
	case r := <-c.out:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
	}
	return nil
}

func TestStationProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, c := newTestStation(t, ctx, &StationConf{Tick: time.Hour}, dispatch.New(&dispatch.Conf{MaxLength: 16}))

	err := s.Register("PING", func(ctx context.Context, b *buffer.Buffer) {
		n, _ := b.IntAt(1)
		s.Emit(map[string]interface{}{"pong": n})
	}, dispatch.IdleInterval)
	if err != nil {
		t.Fatal(err)
	}

	go s.Loop(ctx)

	c.in <- []byte("PING 3")
	r := await(t, c)
	if !r.Executed || r.Err != "" || len(r.Emitted) != 1 {
		t.Fatal(JS(r))
	}
	if m := r.Emitted[0].(map[string]interface{}); m["pong"] != 3 {
		t.Fatal(JS(r))
	}

	c.in <- []byte("PONG 3")
	if r = await(t, c); r.Executed || r.Err != "" || len(r.Emitted) != 0 {
		t.Fatal(JS(r))
	}

	c.in <- []byte("PING 1234567890123456")
	r = await(t, c)
	if r.Executed || r.Err != dispatch.ErrOverflow.Error() || len(r.Emitted) != 1 {
		t.Fatal(JS(r))
	}
	if _, have := r.Emitted[0].(map[string]interface{})["error"]; !have {
		t.Fatal(JS(r))
	}

	if !s.Inject(ctx, []byte("PING 4")) {
		t.Fatal("Inject")
	}
	if r = await(t, c); !r.Executed || r.Msg != "PING 4" {
		t.Fatal(JS(r))
	}
}

func TestStationRegister(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, _ := newTestStation(t, ctx, nil, dispatch.New(&dispatch.Conf{MaxEvents: 1}))
	h := func(ctx context.Context, b *buffer.Buffer) {}

	if err := s.Register("", h, dispatch.IdleInterval); err == nil {
		t.Fatal("empty name")
	}
	if err := s.Register("A", h, dispatch.IdleInterval); err != nil {
		t.Fatal(err)
	}
	err := s.Register("A", h, dispatch.IdleInterval)
	if re, is := err.(*RegistrationError); !is || re.Reason != "duplicate" || re.Command != "A" {
		t.Fatal(err)
	}
	err = s.Register("B", h, dispatch.IdleInterval)
	if re, is := err.(*RegistrationError); !is || re.Reason != "table full (1)" {
		t.Fatal(err)
	}
}

func TestStationPeriodic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, c := newTestStation(t, ctx, &StationConf{Tick: time.Millisecond}, nil)

	n := 0
	s.Register("TICK", func(ctx context.Context, b *buffer.Buffer) {
		if b != nil {
			t.Error("expected a nil buffer")
		}
		n++
		s.Emit(n)
	}, 5*time.Millisecond)

	go s.Loop(ctx)

	r := await(t, c)
	if !r.Periodic || r.Msg != "" || len(r.Emitted) != 1 {
		t.Fatal(JS(r))
	}
}

func TestStationHaltOnEOF(t *testing.T) {
	for _, halt := range []bool{true, false} {
		ctx, cancel := context.WithCancel(context.Background())

		s, c := newTestStation(t, ctx, &StationConf{HaltOnInputEOF: halt}, nil)
		stopped := make(chan bool)
		go func() {
			s.Loop(ctx)
			close(stopped)
		}()

		close(c.done)

		select {
		case <-stopped:
			if !halt {
				t.Fatal("halted")
			}
		case <-time.After(50 * time.Millisecond):
			if halt {
				t.Fatal("didn't halt")
			}
		}

		cancel()
		<-stopped
	}
}
