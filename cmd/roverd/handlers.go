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
	"time"

	"github.com/Comcast/rover/buffer"
	"github.com/Comcast/rover/config"
	"github.com/Comcast/rover/dispatch"
	"github.com/Comcast/rover/tools"
)

const (
	// DefaultSpeed is an engine's initial speed.
	DefaultSpeed = 500

	// SpeedChangeInterval is the period of the RAMP command.
	SpeedChangeInterval = 5 * time.Millisecond

	// StatusTemperatures and StatusReadings give the arguments
	// of SEND: that many floats followed by that many integers.
	StatusTemperatures = 2
	StatusReadings     = 13
)

// Direction of an Engine.
type Direction string

const (
	Stopped  Direction = "stopped"
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// Engine is the state of one track.
type Engine struct {
	Direction Direction `json:"direction"`
	Speed     int       `json:"speed"`
}

// Tank holds the state that the builtin commands act on.
//
// All handlers run on the station's loop goroutine, so there's no
// locking.
type Tank struct {
	Left  Engine
	Right Engine

	// Change is -1, 0, or 1 for slowing, steady, or speeding up.
	Change int

	// StatusTopic, if not empty, is added as "topic" to status
	// messages.
	StatusTopic string

	emit func(interface{})
}

// NewTank makes a Tank that emits via the given function.
func NewTank(emit func(interface{})) *Tank {
	return &Tank{
		Left:  Engine{Stopped, DefaultSpeed},
		Right: Engine{Stopped, DefaultSpeed},
		emit:  emit,
	}
}

func (t *Tank) set(e *Engine, d Direction) dispatch.Handler {
	return func(ctx context.Context, b *buffer.Buffer) {
		if b == nil {
			return
		}
		e.Direction = d
	}
}

func (t *Tank) change(n int) dispatch.Handler {
	return func(ctx context.Context, b *buffer.Buffer) {
		if b == nil {
			return
		}
		t.Change = n
	}
}

// ramp moves both speeds one step according to Change.
func (t *Tank) ramp(ctx context.Context, b *buffer.Buffer) {
	switch {
	case t.Change < 0:
		if 0 < t.Left.Speed {
			t.Left.Speed--
		}
		if 0 < t.Right.Speed {
			t.Right.Speed--
		}
	case 0 < t.Change:
		t.Left.Speed++
		t.Right.Speed++
	}
}

// relay emits everything after the command word.
func (t *Tank) relay(ctx context.Context, b *buffer.Buffer) {
	if b == nil {
		return
	}
	if rest := b.RestAt(1); rest != nil {
		t.emit(map[string]interface{}{
			"relay": string(rest),
		})
	}
}

// status emits a status message if all of the readings parse.
func (t *Tank) status(ctx context.Context, b *buffer.Buffer) {
	if b == nil {
		return
	}
	temps := make([]float64, StatusTemperatures)
	for i := range temps {
		x, ok := b.FloatAt(1 + i)
		if !ok {
			return
		}
		temps[i] = x
	}
	readings := make([]int, StatusReadings)
	for i := range readings {
		n, ok := b.IntAt(1 + StatusTemperatures + i)
		if !ok {
			return
		}
		readings[i] = n
	}
	msg := map[string]interface{}{
		"temperatures": temps,
		"readings":     readings,
		"left":         t.Left,
		"right":        t.Right,
	}
	if t.StatusTopic != "" {
		msg["topic"] = t.StatusTopic
	}
	t.emit(msg)
}

// MP3Frame encodes a serial MP3 player command.
func MP3Frame(command, hi, lo byte) []byte {
	return []byte{0x7e, 0xff, 0x06, command, 0x00, hi, lo, 0xef}
}

// mp3 emits the hex of an MP3 frame for "MP3 CMD HI LO".
func (t *Tank) mp3(ctx context.Context, b *buffer.Buffer) {
	if b == nil {
		return
	}
	var args [3]byte
	for i := range args {
		n, ok := b.IntAt(1 + i)
		if !ok || n < 0 || 255 < n {
			return
		}
		args[i] = byte(n)
	}
	t.emit(map[string]interface{}{
		"frame": hex.EncodeToString(MP3Frame(args[0], args[1], args[2])),
	})
}

// Builtins returns the Tank's commands plus HELP, which lists what
// the given dispatcher has.
func (t *Tank) Builtins(d *dispatch.Dispatcher) map[string]config.Builtin {
	return map[string]config.Builtin{
		"MOVE": {
			Handler: t.relay,
			Doc:     "`MOVE ...` relays everything after `MOVE`.",
		},
		"SEND": {
			Handler: t.status,
			Doc:     "`SEND T1 T2 R1 ... R13` emits a status message with two temperatures and thirteen readings.",
		},
		"MP3": {
			Handler: t.mp3,
			Doc:     "`MP3 CMD HI LO` emits an MP3 player frame.",
		},
		"FORWARDL":  {Handler: t.set(&t.Left, Forward), Doc: "Left track forward."},
		"FORWARDR":  {Handler: t.set(&t.Right, Forward), Doc: "Right track forward."},
		"BACKWARDL": {Handler: t.set(&t.Left, Backward), Doc: "Left track backward."},
		"BACKWARDR": {Handler: t.set(&t.Right, Backward), Doc: "Right track backward."},
		"STOPL":     {Handler: t.set(&t.Left, Stopped), Doc: "Stop the left track."},
		"STOPR":     {Handler: t.set(&t.Right, Stopped), Doc: "Stop the right track."},
		"FASTER":    {Handler: t.change(1), Doc: "Start speeding up."},
		"SLOWER":    {Handler: t.change(-1), Doc: "Start slowing down."},
		"STEADY":    {Handler: t.change(0), Doc: "Keep the current speed."},
		"RAMP": {
			Handler:  t.ramp,
			Interval: SpeedChangeInterval,
			Doc:      "Periodically applies FASTER or SLOWER.",
		},
		"HELP": {
			Handler: func(ctx context.Context, b *buffer.Buffer) {
				t.emit(map[string]interface{}{
					"commands": tools.CommandDocs(d.Events()),
				})
			},
			Doc: "Lists the commands.",
		},
	}
}
