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

// Package interpreters collects the interpreters that can run
// command handlers given as source in a configuration.
package interpreters

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/Comcast/rover/buffer"
	"github.com/Comcast/rover/dispatch"
	"github.com/Comcast/rover/interpreters/goja"
	"github.com/Comcast/rover/interpreters/noop"
)

// ErrUnknownInterpreter occurs when a command names an interpreter
// that isn't in the map.
var ErrUnknownInterpreter = errors.New("interpreter not found")

// Interpreter can compile and execute code for command handlers.
type Interpreter interface {
	// Compile can make something that helps when Exec()ing the
	// code later.
	Compile(ctx context.Context, code interface{}) (interface{}, error)

	// Exec runs the compiled code for the given command.  The
	// buffer is nil for a periodic call.  Any output goes to
	// emit.
	Exec(ctx context.Context, command string, b *buffer.Buffer, emit func(interface{}), compiled interface{}) error
}

// Map is a map from interpreter names to Interpreters.
type Map map[string]Interpreter

// Standard returns the interpreters we usually want.
func Standard() Map {
	is := make(Map)

	g := goja.NewInterpreter()
	is["goja"] = g
	is["ecmascript"] = g
	is["ecmascript-5.1"] = g

	is["noop"] = noop.NewInterpreter()

	return is
}

// Find returns the named Interpreter.  An empty name means "goja".
func (m Map) Find(name string) (Interpreter, error) {
	if name == "" {
		name = "goja"
	}
	i, have := m[name]
	if !have {
		return nil, ErrUnknownInterpreter
	}
	return i, nil
}

// DefaultTimeout bounds a single handler execution.
var DefaultTimeout = time.Second

// Handler makes a dispatch.Handler that executes the compiled code.
//
// Execution errors never escape: they are logged and emitted as
// {"error": msg, "command": name}.  A timeout of zero means
// DefaultTimeout.
func Handler(i Interpreter, name string, compiled interface{}, emit func(interface{}), timeout time.Duration) dispatch.Handler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if emit == nil {
		emit = func(interface{}) {}
	}
	return func(ctx context.Context, b *buffer.Buffer) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := i.Exec(ctx, name, b, emit, compiled); err != nil {
			log.Printf("ERROR %s handler: %s", name, err)
			emit(map[string]interface{}{
				"error":   err.Error(),
				"command": name,
			})
		}
	}
}
