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

package noop

import (
	"context"
	"log"

	"github.com/Comcast/rover/buffer"
)

// Interpreter is a command handler interpreter that does nothing.
// Useful for declaring a command (and its documentation) before its
// handler exists.
type Interpreter struct {
	// Silent, if false, will suppress warning log messages.
	Silent bool
}

func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

func (i *Interpreter) Compile(ctx context.Context, code interface{}) (interface{}, error) {
	if !i.Silent {
		log.Printf("warning: Using noop Interpreter for compilation")
	}
	return nil, nil
}

func (i *Interpreter) Exec(ctx context.Context, command string, b *buffer.Buffer, emit func(interface{}), compiled interface{}) error {
	if !i.Silent {
		log.Printf("warning: Using noop Interpreter to execute %s", command)
	}
	return nil
}
