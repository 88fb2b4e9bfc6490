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

// Package goja provides a command handler interpreter for
// ECMAScript using Goja.
package goja

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Comcast/rover/buffer"

	"github.com/dop251/goja"
	"github.com/gorhill/cronexpr"
)

var (
	// InterruptedMessage is the string value of Interrupted.
	InterruptedMessage = "RuntimeError: timeout"

	// Interrupted is returned by Exec if the execution is
	// interrupted.
	Interrupted = errors.New(InterruptedMessage)
)

// Interpreter runs command handlers written in ECMAScript 5.1+ via
// Goja.
//
// See https://github.com/dop251/goja.
type Interpreter struct {

	// Testing is used to expose or hide some runtime
	// capabilities.
	Testing bool

	// LibraryProvider resolves "requires" entries.  When nil,
	// DefaultLibraryProvider is used.
	LibraryProvider func(ctx context.Context, i *Interpreter, libraryName string) (string, error)
}

// NewInterpreter makes a new Interpreter.
func NewInterpreter() *Interpreter {
	return &Interpreter{}
}

// ProvideLibrary resolves the library name into library source.
func (i *Interpreter) ProvideLibrary(ctx context.Context, name string) (string, error) {
	if i.LibraryProvider != nil {
		return i.LibraryProvider(ctx, i, name)
	}
	return DefaultLibraryProvider(ctx, i, name)
}

var DefaultLibraryProvider = MakeFileLibraryProvider(".")

// MakeFileLibraryProvider resolves library names that are URLs with
// protocols of "file", "http", and "https".  File names are relative
// to the given directory.
func MakeFileLibraryProvider(dir string) func(context.Context, *Interpreter, string) (string, error) {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		parts := strings.SplitN(name, "://", 2)
		if 2 != len(parts) {
			return "", fmt.Errorf("bad link '%s'", name)
		}
		switch parts[0] {
		case "file":
			bs, err := ioutil.ReadFile(dir + "/" + parts[1])
			if err != nil {
				return "", err
			}
			return string(bs), nil
		case "http", "https":
			req, err := http.NewRequest("GET", name, nil)
			if err != nil {
				return "", err
			}
			req = req.WithContext(ctx)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return "", err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return "", fmt.Errorf("library fetch status %s %d",
					resp.Status, resp.StatusCode)
			}
			bs, err := ioutil.ReadAll(resp.Body)
			if err != nil {
				return "", err
			}
			return string(bs), nil
		default:
			return "", fmt.Errorf("unknown protocol '%s'", parts[0])
		}
	}
}

// MakeMapLibraryProvider serves libraries from the given map.
func MakeMapLibraryProvider(srcs map[string]string) func(context.Context, *Interpreter, string) (string, error) {
	return func(ctx context.Context, i *Interpreter, name string) (string, error) {
		src, have := srcs[name]
		if !have {
			return "", fmt.Errorf("undefined library '%s'", name)
		}
		return src, nil
	}
}

func wrapSrc(src string) string {
	return fmt.Sprintf("(function() {\n%s\n}());\n", src)
}

// parseSource looks into the given map to try to find "requires" and
// "code" properties.
func parseSource(vv map[string]interface{}) (code string, libs []string, err error) {
	x := vv["code"]
	if s, is := x.(string); is {
		code = s
	} else {
		err = errors.New("bad Goja handler code")
		return
	}

	switch vv := vv["requires"].(type) {
	case nil:
	case string:
		libs = []string{vv}
	case []string:
		libs = vv
	case []interface{}:
		libs = make([]string, 0, len(vv))
		for _, x := range vv {
			s, is := x.(string)
			if !is {
				err = errors.New("bad library")
				return
			}
			libs = append(libs, s)
		}
	default:
		err = fmt.Errorf("bad requires (%T)", vv)
	}

	return
}

// AsSource accepts either plain code or a map with "code" and
// optional "requires".
func AsSource(src interface{}) (code string, libs []string, err error) {
	switch vv := src.(type) {
	case string:
		code = vv
		return
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, v := range vv {
			str, ok := k.(string)
			if !ok {
				err = fmt.Errorf("bad src key (%T)", k)
				return
			}
			m[str] = v
		}
		return parseSource(m)
	case map[string]interface{}:
		return parseSource(vv)
	default:
		err = fmt.Errorf("bad Goja source (%T)", src)
		return
	}
}

// Compile resolves any required libraries and compiles the handler
// source into a *goja.Program.
//
// This method can block if the library provider blocks.
func (i *Interpreter) Compile(ctx context.Context, src interface{}) (interface{}, error) {
	code, libs, err := AsSource(src)
	if err != nil {
		return nil, err
	}

	code = wrapSrc(code)

	var libsSrc string
	for _, lib := range libs {
		libSrc, err := i.ProvideLibrary(ctx, lib)
		if err != nil {
			return nil, err
		}
		libsSrc += libSrc + "\n"
	}

	code = libsSrc + code

	obj, err := goja.Compile("", code, true)
	if err != nil {
		return nil, errors.New(err.Error() + ": " + code)
	}

	return obj, nil
}

func protest(o *goja.Runtime, x interface{}) {
	panic(o.ToValue(x))
}

// Exec runs a compiled handler.
//
// The following properties are available from the runtime at _.
//
//	command: the name of the command being handled.
//	periodic: true when there's no buffer (an interval firing).
//	words: the number of words in the buffer.
//	word(i): the i-th word or null.
//	int(i): the i-th word as an integer or null.
//	float(i): the i-th word as a float or null.
//	rest(i): the text from the i-th word to the end or null.
//	out(obj): emit the given object.
//	log(x): log x as JSON.
//	cronNext(expr): the next time (RFC3339) for the cron expression.
//
// A non-null value returned by the handler is also emitted.
//
// The Testing flag must be set to see sleep(ms).
func (i *Interpreter) Exec(ctx context.Context, command string, b *buffer.Buffer, emit func(interface{}), compiled interface{}) error {
	p, is := compiled.(*goja.Program)
	if !is {
		return fmt.Errorf("Goja bad compilation: %T %#v", compiled, compiled)
	}
	if emit == nil {
		emit = func(interface{}) {}
	}

	o := goja.New()

	words := 0
	if b != nil {
		words = b.NumWords()
	}

	env := map[string]interface{}{
		"command":  command,
		"periodic": b == nil,
		"words":    words,
	}

	env["word"] = func(n int) interface{} {
		if b == nil {
			return nil
		}
		if w := b.WordAt(n); w != nil {
			return string(w)
		}
		return nil
	}

	env["int"] = func(n int) interface{} {
		if b == nil {
			return nil
		}
		if x, ok := b.IntAt(n); ok {
			return x
		}
		return nil
	}

	env["float"] = func(n int) interface{} {
		if b == nil {
			return nil
		}
		if x, ok := b.FloatAt(n); ok {
			return x
		}
		return nil
	}

	env["rest"] = func(n int) interface{} {
		if b == nil {
			return nil
		}
		if r := b.RestAt(n); r != nil {
			return string(r)
		}
		return nil
	}

	env["out"] = func(x goja.Value) interface{} {
		y, err := canonicalize(x.Export())
		if err != nil {
			// Will end up as a Javascript exception.
			protest(o, err.Error())
		}
		emit(y)
		return y
	}

	env["log"] = func(x goja.Value) interface{} {
		v := x.Export()
		js, err := json.Marshal(&v)
		if err != nil {
			log.Println("goja.log (can't marshal: " + err.Error() + ")")
		} else {
			log.Println(string(js))
		}
		return v
	}

	env["cronNext"] = func(x goja.Value) interface{} {
		cronExpr, is := x.Export().(string)
		if !is {
			protest(o, "not a string")
		}
		c, err := cronexpr.Parse(cronExpr)
		if err != nil {
			protest(o, err.Error())
		}
		return c.Next(time.Now()).UTC().Format(time.RFC3339Nano)
	}

	if i.Testing {
		o.Set("sleep", func(ms int) {
			time.Sleep(time.Duration(ms) * time.Millisecond)
		})
	}

	o.Set("_", env)

	// We want to make sure that the following goroutine is
	// terminated as soon as possible.
	ictx, cancel := context.WithCancel(ctx)
	go func() {
		<-ictx.Done()
		// If we get here after RunProgram returned, the
		// interrupt is harmless.
		o.Interrupt(InterruptedMessage)
	}()

	v, err := o.RunProgram(p)
	cancel()

	if err != nil {
		if _, is := err.(*goja.InterruptedError); is {
			return Interrupted
		}
		return err
	}

	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}

	y, err := canonicalize(v.Export())
	if err != nil {
		return err
	}
	emit(y)

	return nil
}

// canonicalize round-trips through JSON so that emitted values are
// plain maps, slices, strings, float64s, and bools.
func canonicalize(x interface{}) (interface{}, error) {
	js, err := json.Marshal(&x)
	if err != nil {
		return nil, err
	}
	var y interface{}
	if err = json.Unmarshal(js, &y); err != nil {
		return nil, err
	}
	return y, nil
}
