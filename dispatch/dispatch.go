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

package dispatch

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Comcast/rover/buffer"
)

const (
	// DefaultMaxEvents is the table capacity used when Conf
	// doesn't give one.
	DefaultMaxEvents = 20

	// IdleInterval disables periodic firing for an event.
	IdleInterval time.Duration = 0
)

// ErrOverflow is returned by Process when a message doesn't fit in
// the Dispatcher's buffer.
var ErrOverflow = errors.New("message exceeds buffer capacity")

// Handler is the work registered for a command.
//
// For a command execution, the Handler gets the buffer that held the
// command so that it can read its arguments.  For a periodic
// execution, the buffer is nil.
//
// A Handler runs synchronously on the caller's goroutine, so it
// should be quick.
type Handler func(ctx context.Context, b *buffer.Buffer)

// Event is an entry in the Dispatcher's table.
type Event struct {
	// Name is the command word that triggers the event.  Exact,
	// case-sensitive match.
	Name string `json:"name" yaml:"name"`

	// Doc is optional documentation (Markdown).
	Doc string `json:"doc,omitempty" yaml:"doc,omitempty"`

	// Handler is the function to call.
	Handler Handler `json:"-" yaml:"-"`

	// Interval, when not IdleInterval, makes ExecIntervals fire
	// the Handler periodically.
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`

	// LastFired is written only by ExecIntervals.  The zero
	// value means the Dispatcher's epoch.
	LastFired time.Time `json:"-" yaml:"-"`
}

// Conf gives the fixed capacities of a Dispatcher.
type Conf struct {
	// MaxEvents is the table capacity.
	MaxEvents int `json:"maxEvents,omitempty" yaml:"maxEvents,omitempty"`

	// MaxLength is the capacity of the Dispatcher's own buffer.
	MaxLength int `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`

	// Epoch is the time at which periodic events are considered
	// to have last fired before their first firing.  Defaults to
	// the Dispatcher's construction time.
	Epoch time.Time `json:"-" yaml:"-"`
}

// Dispatcher maps command words to Handlers using a fixed-capacity
// table, and it fires periodic Handlers when asked to.
//
// The Dispatcher owns one Buffer.  Callers that feed that buffer
// from more than one goroutine must hold the Dispatcher's lock for
// the whole append-execute-clear sequence.  Process and Tick do
// that.  The other methods are not thread-safe.
type Dispatcher struct {
	sync.Mutex

	// Verbose turns on logging.
	Verbose bool

	buf    *buffer.Buffer
	events []Event
	epoch  time.Time
}

// New makes a Dispatcher.  The conf can be nil.
func New(conf *Conf) *Dispatcher {
	if conf == nil {
		conf = &Conf{}
	}
	max := conf.MaxEvents
	if max <= 0 {
		max = DefaultMaxEvents
	}
	epoch := conf.Epoch
	if epoch.IsZero() {
		epoch = time.Now()
	}
	return &Dispatcher{
		buf:    buffer.New(conf.MaxLength),
		events: make([]Event, 0, max),
		epoch:  epoch,
	}
}

// Logf logs if d.Verbose.
func (d *Dispatcher) Logf(format string, args ...interface{}) {
	if !d.Verbose {
		return
	}
	log.Printf(format, args...)
}

// Buffer returns the Dispatcher's own buffer.
func (d *Dispatcher) Buffer() *buffer.Buffer {
	return d.buf
}

// Epoch returns the reference time for periodic events.
func (d *Dispatcher) Epoch() time.Time {
	return d.epoch
}

// Cap returns the table capacity.
func (d *Dispatcher) Cap() int {
	return cap(d.events)
}

// Len returns the number of registered events.
func (d *Dispatcher) Len() int {
	return len(d.events)
}

// IsFull reports whether the table is at capacity.
func (d *Dispatcher) IsFull() bool {
	return cap(d.events) <= len(d.events)
}

// find does a linear scan for the given command word.
func (d *Dispatcher) find(name []byte) *Event {
	for i := range d.events {
		if d.events[i].Name == string(name) {
			return &d.events[i]
		}
	}
	return nil
}

// Event returns the registered event with the given name or nil.
//
// The returned pointer is into the table.
func (d *Dispatcher) Event(name string) *Event {
	for i := range d.events {
		if d.events[i].Name == name {
			return &d.events[i]
		}
	}
	return nil
}

// Events returns a copy of the table in registration order.
func (d *Dispatcher) Events() []Event {
	acc := make([]Event, len(d.events))
	copy(acc, d.events)
	return acc
}

// AddEvent registers a Handler for a command name.
//
// Returns false, leaving the table unchanged, if the name is empty,
// the handler is nil, the table is full, or the name is already
// registered.
func (d *Dispatcher) AddEvent(name string, h Handler, interval time.Duration) bool {
	if name == "" || h == nil || d.IsFull() {
		return false
	}
	if d.Event(name) != nil {
		return false
	}
	d.events = append(d.events, Event{
		Name:     name,
		Handler:  h,
		Interval: interval,
	})
	d.Logf("Dispatcher.AddEvent %s (%d/%d)", name, len(d.events), cap(d.events))
	return true
}

// SetInterval changes the interval of an existing event.
func (d *Dispatcher) SetInterval(name string, interval time.Duration) bool {
	e := d.Event(name)
	if e == nil {
		return false
	}
	e.Interval = interval
	return true
}

// SetDoc sets the documentation for an existing event.
func (d *Dispatcher) SetDoc(name, doc string) bool {
	e := d.Event(name)
	if e == nil {
		return false
	}
	e.Doc = doc
	return true
}

// Exec looks up the word at position pos in b and calls the
// matching Handler with b.
//
// Returns true only if a Handler was called.
func (d *Dispatcher) Exec(ctx context.Context, b *buffer.Buffer, pos int) bool {
	if b == nil {
		return false
	}
	command := b.WordAt(pos)
	if command == nil {
		return false
	}
	e := d.find(command)
	if e == nil {
		d.Logf("Dispatcher.Exec unknown command %q", command)
		return false
	}
	d.Logf("Dispatcher.Exec %s", e.Name)
	e.Handler(ctx, b)
	return true
}

// ExecBuffer is Exec on the Dispatcher's own buffer at position 0.
func (d *Dispatcher) ExecBuffer(ctx context.Context) bool {
	return d.Exec(ctx, d.buf, 0)
}

// ExecIntervals calls the Handler of every periodic event whose
// interval has elapsed at the given time.
//
// An event fires when now - LastFired > Interval.  Events with
// IdleInterval never fire here.
func (d *Dispatcher) ExecIntervals(ctx context.Context, now time.Time) {
	for i := range d.events {
		e := &d.events[i]
		if e.Interval == IdleInterval {
			continue
		}
		last := e.LastFired
		if last.IsZero() {
			last = d.epoch
		}
		if now.Sub(last) > e.Interval {
			d.Logf("Dispatcher.ExecIntervals %s", e.Name)
			e.Handler(ctx, nil)
			e.LastFired = now
		}
	}
}

// Process runs one complete message through the Dispatcher's own
// buffer while holding the Dispatcher's lock.
//
// The buffer is cleared before and after.  If the message doesn't
// fit, nothing is executed and ErrOverflow is returned.  Otherwise
// Process reports whether a Handler was called.
func (d *Dispatcher) Process(ctx context.Context, msg []byte) (bool, error) {
	d.Lock()
	defer d.Unlock()

	d.buf.Clear()
	defer d.buf.Clear()

	if !d.buf.Push(msg) {
		d.Logf("Dispatcher.Process overflow (%d bytes)", len(msg))
		return false, ErrOverflow
	}

	return d.ExecBuffer(ctx), nil
}

// Tick is ExecIntervals while holding the Dispatcher's lock.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) {
	d.Lock()
	defer d.Unlock()
	d.ExecIntervals(ctx, now)
}
