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

// Package dispatch maps command words to handlers.
//
// A Dispatcher has a fixed-capacity table of Events.  Each Event has
// a name, a Handler, and an optional interval.  Given a buffer
// holding a text command, Exec finds the Event whose name matches
// the command word and calls its Handler, which can then read its
// arguments from the buffer.  Independently, ExecIntervals fires the
// Handlers of periodic Events using a clock supplied by the caller.
// The Dispatcher has no goroutines or timers of its own.
//
// Registration failures (full table, duplicate name) and unknown
// commands are reported as false returns.  They are expected, and
// the caller decides what to do about them.
//
// A typical setup:
//
//	d := dispatch.New(nil)
//	d.AddEvent("FORWARD", forward, dispatch.IdleInterval)
//	d.AddEvent("TICK", tick, 50*time.Millisecond)
//
//	// For each complete message from a transport:
//	executed, err := d.Process(ctx, line)
//
//	// On every loop tick:
//	d.Tick(ctx, time.Now())
package dispatch
