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
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Comcast/rover/dispatch"
)

// DefaultTick is the default period for firing periodic commands.
var DefaultTick = 10 * time.Millisecond

// StationConf provides some basic Station parameters.
type StationConf struct {
	// Id is only used in log lines.
	Id string `json:"id,omitempty" yaml:"id,omitempty"`

	// Tick is the period at which periodic commands are
	// considered.  Defaults to DefaultTick.
	Tick time.Duration `json:"tick,omitempty" yaml:"tick,omitempty"`

	// HaltOnInputEOF will stop the loop when the input coupling
	// reports that its input is exhausted.
	HaltOnInputEOF bool `json:"haltOnInputEOF,omitempty" yaml:"haltOnInputEOF,omitempty"`
}

// Result represents all visible output from processing a message or
// a tick.
type Result struct {
	// Msg is the raw message.  Empty for a tick.
	Msg string `json:"msg,omitempty"`

	// Executed reports whether a handler was called for Msg.
	Executed bool `json:"executed"`

	// Err is any processing error (say, the message didn't fit).
	Err string `json:"err,omitempty"`

	// Emitted is the list of messages emitted by handlers during
	// processing, in order.
	Emitted []interface{} `json:"emitted,omitempty"`

	// Periodic is true when the Result came from a tick.
	Periodic bool `json:"periodic,omitempty"`
}

// RegistrationError occurs when a command can't be added to a
// Station's dispatcher.
type RegistrationError struct {
	Command string
	Reason  string
}

func (e *RegistrationError) Error() string {
	return `can't register command "` + e.Command + `": ` + e.Reason
}

// Station couples a Dispatcher to Couplings.
//
// All message processing and all ticks happen in the Loop's
// goroutine.
type Station struct {
	// Dispatcher holds the commands.
	Dispatcher *dispatch.Dispatcher

	// Conf provides some basic Station parameters.
	Conf *StationConf

	// Verbose turns on logging.
	Verbose bool

	// in receives all in-bound messages.
	in chan []byte

	// out receives all Results.
	out chan *Result

	// done is closed by Couplings when its input is closed.
	done chan bool

	// inject receives messages from within the process
	// (scheduled commands).
	inject chan []byte

	// emitted accumulates what handlers emit until the current
	// Result is assembled.
	emitted []interface{}
	emitMu  sync.Mutex
}

// NewStation makes a station with the given configuration,
// dispatcher, and couplings.
//
// The coupling's IO() method is called to obtain the station's
// channels.
func NewStation(ctx context.Context, conf *StationConf, d *dispatch.Dispatcher, couplings Couplings) (*Station, error) {
	in, out, done, err := couplings.IO(ctx)
	if err != nil {
		return nil, err
	}
	if conf == nil {
		conf = &StationConf{}
	}
	if conf.Tick <= 0 {
		conf.Tick = DefaultTick
	}
	if d == nil {
		d = dispatch.New(nil)
	}
	return &Station{
		Dispatcher: d,
		Conf:       conf,
		in:         in,
		out:        out,
		done:       done,
		inject:     make(chan []byte, 8),
		emitted:    make([]interface{}, 0, 8),
	}, nil
}

// Logf logs if s.Verbose.
func (s *Station) Logf(format string, args ...interface{}) {
	if !s.Verbose {
		return
	}
	log.Printf(format, args...)
}

// Errorf emits an error message and writes a log line with "ERROR"
// prepended.
func (s *Station) Errorf(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	log.Println("ERROR " + msg)
	s.Emit(map[string]interface{}{
		"error": msg,
	})
}

// Emit queues an out-bound message.  The message is delivered with
// the Result of the current message or tick.
//
// Handlers call Emit.
func (s *Station) Emit(x interface{}) {
	s.emitMu.Lock()
	s.emitted = append(s.emitted, x)
	s.emitMu.Unlock()
}

func (s *Station) drain() []interface{} {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	if len(s.emitted) == 0 {
		return nil
	}
	acc := make([]interface{}, len(s.emitted))
	copy(acc, s.emitted)
	s.emitted = s.emitted[:0]
	return acc
}

// Register adds a command to the Station's dispatcher.
func (s *Station) Register(name string, h dispatch.Handler, interval time.Duration) error {
	d := s.Dispatcher
	d.Lock()
	defer d.Unlock()

	if d.AddEvent(name, h, interval) {
		return nil
	}
	reason := "invalid"
	switch {
	case name == "" || h == nil:
	case d.Event(name) != nil:
		reason = "duplicate"
	case d.IsFull():
		reason = fmt.Sprintf("table full (%d)", d.Cap())
	}
	return &RegistrationError{
		Command: name,
		Reason:  reason,
	}
}

// ProcessMsg processes the given message and returns the results,
// which can then be processed by the station's Result coupling.
func (s *Station) ProcessMsg(ctx context.Context, msg []byte) *Result {
	s.Logf("ProcessMsg %q", msg)

	r := &Result{
		Msg: string(msg),
	}

	executed, err := s.Dispatcher.Process(ctx, msg)
	if err != nil {
		r.Err = err.Error()
		s.Errorf("ProcessMsg %s (%d bytes)", err, len(msg))
	}
	r.Executed = executed
	r.Emitted = s.drain()

	return r
}

// Tick fires the periodic commands that are due.  Returns nil unless
// something was emitted.
func (s *Station) Tick(ctx context.Context, now time.Time) *Result {
	s.Dispatcher.Tick(ctx, now)
	emitted := s.drain()
	if emitted == nil {
		return nil
	}
	return &Result{
		Emitted:  emitted,
		Periodic: true,
	}
}

// Inject queues a message for processing by the Loop as if it came
// from the input coupling.
//
// Returns false if the context ended first.
func (s *Station) Inject(ctx context.Context, msg []byte) bool {
	select {
	case <-ctx.Done():
		return false
	case s.inject <- msg:
		return true
	}
}

func (s *Station) send(ctx context.Context, r *Result) {
	select {
	case <-ctx.Done():
	case s.out <- r:
	}
}

// Loop starts the input processing loop in the current goroutine.
//
// This loop calls ProcessMsg on each message that arrives via the
// input coupling or Inject, and it calls Tick periodically.  The loop
// halts when ctx.Done() or when the input channel is closed.
func (s *Station) Loop(ctx context.Context) error {
	s.Logf("Station.Loop %s starting", s.Conf.Id)

	ticker := time.NewTicker(s.Conf.Tick)
	defer ticker.Stop()

	done := s.done
LOOP:
	for {
		select {
		case <-done:
			if s.Conf.HaltOnInputEOF {
				s.Logf("Station.Loop shutting down (done)")
				break LOOP
			}
			done = nil
		case <-ctx.Done():
			s.Logf("Station.Loop shutting down (ctx.Done)")
			break LOOP
		case msg, ok := <-s.in:
			if !ok {
				break LOOP
			}
			s.send(ctx, s.ProcessMsg(ctx, msg))
		case msg := <-s.inject:
			s.send(ctx, s.ProcessMsg(ctx, msg))
		case now := <-ticker.C:
			if r := s.Tick(ctx, now); r != nil {
				s.send(ctx, r)
			}
		}
	}

	s.Logf("Station.Loop done")
	return nil
}
