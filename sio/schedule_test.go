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
)

func TestSchedulerAddRem(t *testing.T) {
	s := NewScheduler(nil)
	if err := s.Add("a", "*/5 * * * *", "STATUS"); err != nil {
		t.Fatal(err)
	}
	if err := s.Add("a", "* * * * *", "STATUS"); err != ErrScheduleExists {
		t.Fatal(err)
	}
	if err := s.Add("b", "not cron", "STATUS"); err == nil {
		t.Fatal("bad cron accepted")
	}
	if err := s.Add("b", "0 0 1 1 *", "NEW YEAR"); err != nil {
		t.Fatal(err)
	}

	es := s.Entries()
	if len(es) != 2 || es[0].Id != "a" || es[1].Id != "b" {
		t.Fatal(es)
	}

	if err := s.Rem("a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Rem("a"); err != ErrScheduleNotFound {
		t.Fatal(err)
	}
	if es = s.Entries(); len(es) != 1 {
		t.Fatal(es)
	}
}

func TestSchedulerDue(t *testing.T) {
	s := NewScheduler(nil)
	if err := s.Add("m", "* * * * *", "STATUS"); err != nil {
		t.Fatal(err)
	}
	next := s.Entries()[0].Next
	if next.IsZero() {
		t.Fatal("no next")
	}

	if due := s.Due(next.Add(-time.Second)); len(due) != 0 {
		t.Fatal(due)
	}
	due := s.Due(next)
	if len(due) != 1 || string(due[0]) != "STATUS" {
		t.Fatal(due)
	}
	if again := s.Entries()[0].Next; !again.After(next) {
		t.Fatal(again)
	}
	if due = s.Due(next); len(due) != 0 {
		t.Fatal(due)
	}
}

func TestSchedulerRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 4)
	s := NewScheduler(func(ctx context.Context, cmd []byte) bool {
		got <- string(cmd)
		return true
	})

	go s.Run(ctx)

	// Every second.
	if err := s.Add("s", "* * * * * * *", "PING"); err != nil {
		t.Fatal(err)
	}

	select {
	case cmd := <-got:
		if cmd != "PING" {
			t.Fatal(cmd)
		}
	case <-ctx.Done():
		t.Fatal("never fired")
	}
}
