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
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
)

var (
	// ErrScheduleExists occurs when adding a schedule with an id
	// that's already in use.
	ErrScheduleExists = errors.New("schedule id exists")

	// ErrScheduleNotFound occurs when removing an unknown
	// schedule.
	ErrScheduleNotFound = errors.New("schedule not found")
)

// Schedule is a command that should be injected according to a cron
// expression.
type Schedule struct {
	Id      string `json:"id" yaml:"id" toml:"id"`
	Cron    string `json:"cron" yaml:"cron" toml:"cron"`
	Command string `json:"command" yaml:"command" toml:"command"`

	// Next is the next time the command is due.  The zero time
	// means never.
	Next time.Time `json:"next,omitempty" yaml:"-" toml:"-"`

	expr *cronexpr.Expression
}

// Scheduler injects commands at times given by cron expressions.
//
// At any point only one time.Timer exists to implement all entries.
// You need to Run the Scheduler for anything to happen.
type Scheduler struct {
	// Verbose turns on logging.
	Verbose bool

	// Inject receives each due command.
	Inject func(context.Context, []byte) bool `json:"-"`

	sync.Mutex
	entries []*Schedule
	up      chan bool
}

// NewScheduler makes a Scheduler that gives due commands to the
// given function, which is typically Station.Inject.
func NewScheduler(inject func(context.Context, []byte) bool) *Scheduler {
	return &Scheduler{
		Inject:  inject,
		entries: make([]*Schedule, 0, 8),
		up:      make(chan bool, 1),
	}
}

func (s *Scheduler) logf(format string, args ...interface{}) {
	if s.Verbose {
		log.Printf(format, args...)
	}
}

// reset wakes up Run so that it recomputes its timer.
func (s *Scheduler) reset() {
	select {
	case s.up <- true:
	default:
	}
}

// Add parses the cron expression and adds the entry.
func (s *Scheduler) Add(id, cron, command string) error {
	expr, err := cronexpr.Parse(cron)
	if err != nil {
		return err
	}

	s.Lock()
	for _, e := range s.entries {
		if e.Id == id {
			s.Unlock()
			return ErrScheduleExists
		}
	}
	s.entries = append(s.entries, &Schedule{
		Id:      id,
		Cron:    cron,
		Command: command,
		Next:    expr.Next(time.Now()),
		expr:    expr,
	})
	s.Unlock()

	s.logf("Scheduler.Add %s %q %q", id, cron, command)
	s.reset()
	return nil
}

// Rem removes the entry with the given id.
func (s *Scheduler) Rem(id string) error {
	s.Lock()
	defer s.Unlock()
	for i, e := range s.entries {
		if e.Id == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			s.reset()
			return nil
		}
	}
	return ErrScheduleNotFound
}

// Entries returns copies of the current entries ordered by their
// next due time.
func (s *Scheduler) Entries() []Schedule {
	s.Lock()
	acc := make([]Schedule, len(s.entries))
	for i, e := range s.entries {
		acc[i] = *e
	}
	s.Unlock()

	sort.Slice(acc, func(i, j int) bool {
		return acc[i].Next.Before(acc[j].Next)
	})
	return acc
}

// soonest returns the earliest non-zero Next.
func (s *Scheduler) soonest() (time.Time, bool) {
	s.Lock()
	defer s.Unlock()
	var at time.Time
	for _, e := range s.entries {
		if e.Next.IsZero() {
			continue
		}
		if at.IsZero() || e.Next.Before(at) {
			at = e.Next
		}
	}
	return at, !at.IsZero()
}

// Due returns the commands due at the given time, in the order the
// entries were added, and advances those entries.
func (s *Scheduler) Due(now time.Time) [][]byte {
	s.Lock()
	defer s.Unlock()
	var acc [][]byte
	for _, e := range s.entries {
		if e.Next.IsZero() || now.Before(e.Next) {
			continue
		}
		acc = append(acc, []byte(e.Command))
		e.Next = e.expr.Next(now)
	}
	return acc
}

// Run starts the Scheduler in the current goroutine.  Returns when
// the context is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logf("Scheduler.Run")
	for {
		var (
			timer *time.Timer
			fire  <-chan time.Time
		)
		if at, ok := s.soonest(); ok {
			timer = time.NewTimer(time.Until(at))
			fire = timer.C
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case <-s.up:
			if timer != nil {
				timer.Stop()
			}
		case now := <-fire:
			for _, cmd := range s.Due(now) {
				s.logf("Scheduler firing %q", cmd)
				if s.Inject != nil && !s.Inject(ctx, cmd) {
					return nil
				}
			}
		}
	}
}
