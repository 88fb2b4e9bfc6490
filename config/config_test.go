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

package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/rover/buffer"
	"github.com/Comcast/rover/dispatch"
	"github.com/Comcast/rover/interpreters"
	"github.com/Comcast/rover/sio"
)

var yamlSrc = `
id: tank
buffer:
  maxLength: 64
maxEvents: 5
tick: 20ms
commands:
- name: MOVE
  doc: Relay the rest of the line.
- name: SPEED
  doc: Double the *speed*.
  code: |
    return {speed: _.int(1) * 2};
- name: BEAT
  interval: 50ms
  interpreter: noop
  code: "null"
schedules:
- id: status
  cron: "*/5 * * * *"
  command: SEND
`

var tomlSrc = `
id = "tank"
maxEvents = 5
tick = "20ms"

[buffer]
maxLength = 64

[[commands]]
name = "MOVE"
doc = "Relay the rest of the line."

[[commands]]
name = "SPEED"
code = "return {speed: _.int(1) * 2};"

[[schedules]]
id = "status"
cron = "*/5 * * * *"
command = "SEND"
`

func TestParse(t *testing.T) {
	for format, src := range map[string]string{"yaml": yamlSrc, "toml": tomlSrc} {
		c, err := Parse([]byte(src), format)
		if err != nil {
			t.Fatal(format, err)
		}
		if c.Id != "tank" || c.Buffer.MaxLength != 64 || c.MaxEvents != 5 {
			t.Fatal(format, c)
		}
		if c.StationConf(true).Tick != 20*time.Millisecond {
			t.Fatal(format, c.Tick)
		}
		if c.HandlerTimeout() != time.Second {
			t.Fatal(format, c.Timeout)
		}
		if len(c.Commands) < 2 || c.Commands[1].Name != "SPEED" || !strings.Contains(c.Commands[1].Code, "_.int(1)") {
			t.Fatal(format, c.Commands)
		}
		if len(c.Schedules) != 1 || c.Schedules[0].Command != "SEND" {
			t.Fatal(format, c.Schedules)
		}
		dc := c.DispatchConf()
		if dc.MaxEvents != 5 || dc.MaxLength != 64 {
			t.Fatal(format, dc)
		}
	}

	if _, err := Parse([]byte(yamlSrc), "ini"); err == nil {
		t.Fatal("unknown format")
	}
}

func TestDefaults(t *testing.T) {
	c, err := Parse([]byte(`{}`), "json")
	if err != nil {
		t.Fatal(err)
	}
	if c.Buffer.MaxLength != buffer.DefaultMaxLength || c.MaxEvents != dispatch.DefaultMaxEvents {
		t.Fatal(c)
	}
}

func TestValidate(t *testing.T) {
	for name, src := range map[string]string{
		"tiny buffer":   `buffer: {maxLength: 1}`,
		"no events":     `maxEvents: -1`,
		"bad tick":      `tick: soon`,
		"neg interval":  `commands: [{name: A, interval: -1s}]`,
		"space in name": `commands: [{name: "A B"}]`,
		"duplicate":     `commands: [{name: A}, {name: A}]`,
		"too many":      `{maxEvents: 1, commands: [{name: A}, {name: B}]}`,
		"no id":         `schedules: [{cron: "* * * * *", command: A}]`,
		"long command":  `{buffer: {maxLength: 4}, schedules: [{id: x, cron: "* * * * *", command: ABCD}]}`,
	} {
		if _, err := Parse([]byte(src), "yaml"); err == nil {
			t.Fatal(name)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"rover.yaml", "rover.toml"} {
		src := yamlSrc
		if strings.HasSuffix(name, ".toml") {
			src = tomlSrc
		}
		filename := filepath.Join(dir, name)
		if err := os.WriteFile(filename, []byte(src), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(filename); err != nil {
			t.Fatal(name, err)
		}
	}
	if _, err := Load(filepath.Join(dir, "nope.yaml")); err == nil {
		t.Fatal("missing file")
	}
}

type nullCouplings struct{}

func (c *nullCouplings) Start(ctx context.Context) error { return nil }
func (c *nullCouplings) Stop(ctx context.Context) error  { return nil }
func (c *nullCouplings) IO(ctx context.Context) (chan []byte, chan *sio.Result, chan bool, error) {
	return make(chan []byte), make(chan *sio.Result), make(chan bool), nil
}

func TestInstall(t *testing.T) {
	ctx := context.Background()

	c, err := Parse([]byte(yamlSrc), "yaml")
	if err != nil {
		t.Fatal(err)
	}

	st, err := sio.NewStation(ctx, c.StationConf(false), dispatch.New(c.DispatchConf()), &nullCouplings{})
	if err != nil {
		t.Fatal(err)
	}

	moved := 0
	builtins := map[string]Builtin{
		"MOVE": {
			Handler: func(ctx context.Context, b *buffer.Buffer) { moved++ },
			Doc:     "Moves.",
		},
		"HELP": {
			Handler: func(ctx context.Context, b *buffer.Buffer) {},
			Doc:     "Helps.",
		},
		"RAMP": {
			Handler:  func(ctx context.Context, b *buffer.Buffer) {},
			Interval: 5 * time.Millisecond,
		},
	}

	is := interpreters.Standard()
	if err = c.Install(ctx, st, is, builtins); err != nil {
		t.Fatal(err)
	}

	d := st.Dispatcher
	var names []string
	for _, e := range d.Events() {
		names = append(names, e.Name)
	}
	if strings.Join(names, ",") != "MOVE,SPEED,BEAT,HELP,RAMP" {
		t.Fatal(names)
	}
	if d.Event("MOVE").Doc != "Relay the rest of the line." || d.Event("HELP").Doc != "Helps." {
		t.Fatal(d.Events())
	}
	if d.Event("RAMP").Interval != 5*time.Millisecond {
		t.Fatal(d.Event("RAMP"))
	}
	if d.Event("BEAT").Interval != 50*time.Millisecond {
		t.Fatal(d.Event("BEAT"))
	}
	if d.Event("SPEED").Doc != "Double the *speed*." {
		t.Fatal(d.Event("SPEED"))
	}

	r := st.ProcessMsg(ctx, []byte("SPEED 4"))
	if !r.Executed || len(r.Emitted) != 1 {
		t.Fatal(sio.JS(r))
	}
	if m := r.Emitted[0].(map[string]interface{}); m["speed"] != float64(8) {
		t.Fatal(m)
	}
	if r = st.ProcessMsg(ctx, []byte("MOVE 1 2")); !r.Executed || moved != 1 {
		t.Fatal(sio.JS(r))
	}

	s := sio.NewScheduler(nil)
	if err = c.Schedule(s); err != nil {
		t.Fatal(err)
	}
	if es := s.Entries(); len(es) != 1 || es[0].Id != "status" {
		t.Fatal(es)
	}
}

func TestInstallMissingBuiltin(t *testing.T) {
	ctx := context.Background()
	c, err := Parse([]byte(`commands: [{name: MOVE}]`), "yaml")
	if err != nil {
		t.Fatal(err)
	}
	st, _ := sio.NewStation(ctx, nil, dispatch.New(c.DispatchConf()), &nullCouplings{})
	err = c.Install(ctx, st, interpreters.Standard(), nil)
	if _, is := err.(*sio.RegistrationError); !is {
		t.Fatal(err)
	}

	c, _ = Parse([]byte(`commands: [{name: X, interpreter: cobol, code: "x"}]`), "yaml")
	if err = c.Install(ctx, st, interpreters.Standard(), nil); err == nil {
		t.Fatal("unknown interpreter")
	}
}
