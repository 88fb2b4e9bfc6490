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

// Package config reads a station configuration: buffer and table
// capacities, the commands to register, and scheduled commands.
//
// A file ending in ".toml" is read as TOML.  Anything else is read as
// YAML, which includes JSON.
package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/Comcast/rover/buffer"
	"github.com/Comcast/rover/dispatch"
	"github.com/Comcast/rover/interpreters"
	"github.com/Comcast/rover/sio"

	"github.com/BurntSushi/toml"
	"github.com/jsccast/yaml"
)

// Buffer gives the command buffer capacity.
type Buffer struct {
	MaxLength int `json:"maxLength,omitempty" yaml:"maxLength,omitempty" toml:"maxLength"`
}

// Command declares a command.
//
// A command without Code is a builtin, which must be provided by the
// program.  Otherwise Code is source for the named Interpreter
// (default "goja").
type Command struct {
	Name        string   `json:"name" yaml:"name" toml:"name"`
	Doc         string   `json:"doc,omitempty" yaml:"doc,omitempty" toml:"doc"`
	Interval    string   `json:"interval,omitempty" yaml:"interval,omitempty" toml:"interval"`
	Interpreter string   `json:"interpreter,omitempty" yaml:"interpreter,omitempty" toml:"interpreter"`
	Code        string   `json:"code,omitempty" yaml:"code,omitempty" toml:"code"`
	Requires    []string `json:"requires,omitempty" yaml:"requires,omitempty" toml:"requires"`
}

// Schedule declares a command to inject according to a cron
// expression.
type Schedule struct {
	Id      string `json:"id" yaml:"id" toml:"id"`
	Cron    string `json:"cron" yaml:"cron" toml:"cron"`
	Command string `json:"command" yaml:"command" toml:"command"`
}

// Config is a station configuration.
type Config struct {
	Id        string     `json:"id,omitempty" yaml:"id,omitempty" toml:"id"`
	Buffer    Buffer     `json:"buffer,omitempty" yaml:"buffer,omitempty" toml:"buffer"`
	MaxEvents int        `json:"maxEvents,omitempty" yaml:"maxEvents,omitempty" toml:"maxEvents"`
	Tick      string     `json:"tick,omitempty" yaml:"tick,omitempty" toml:"tick"`
	Timeout   string     `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout"`
	Commands  []Command  `json:"commands,omitempty" yaml:"commands,omitempty" toml:"commands"`
	Schedules []Schedule `json:"schedules,omitempty" yaml:"schedules,omitempty" toml:"schedules"`
}

// Default returns the configuration used when there's no file.
func Default() *Config {
	return &Config{
		Buffer: Buffer{
			MaxLength: buffer.DefaultMaxLength,
		},
		MaxEvents: dispatch.DefaultMaxEvents,
		Tick:      "10ms",
		Timeout:   "1s",
	}
}

// Load reads and validates the given file.
func Load(filename string) (*Config, error) {
	bs, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", filename, err)
	}
	format := "yaml"
	if strings.ToLower(filepath.Ext(filename)) == ".toml" {
		format = "toml"
	}
	c, err := Parse(bs, format)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", filename, err)
	}
	return c, nil
}

// Parse parses and validates configuration source in the given
// format ("yaml" or "toml").  Unset values get the defaults.
func Parse(bs []byte, format string) (*Config, error) {
	c := Default()
	var err error
	switch format {
	case "toml":
		err = toml.Unmarshal(bs, c)
	case "yaml", "yml", "json":
		err = yaml.Unmarshal(bs, c)
	default:
		return nil, fmt.Errorf("unknown config format '%s'", format)
	}
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func duration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", s)
	}
	return d, nil
}

// Validate checks capacities, durations, and names.
func (c *Config) Validate() error {
	if c.Buffer.MaxLength < 2 {
		return fmt.Errorf("buffer.maxLength %d is too small", c.Buffer.MaxLength)
	}
	if c.MaxEvents < 1 {
		return fmt.Errorf("maxEvents %d is too small", c.MaxEvents)
	}
	if len(c.Commands) > c.MaxEvents {
		return fmt.Errorf("%d commands exceed maxEvents %d", len(c.Commands), c.MaxEvents)
	}
	if _, err := duration(c.Tick); err != nil {
		return fmt.Errorf("tick: %w", err)
	}
	if _, err := duration(c.Timeout); err != nil {
		return fmt.Errorf("timeout: %w", err)
	}

	seen := make(map[string]bool, len(c.Commands))
	for i, cmd := range c.Commands {
		if cmd.Name == "" || strings.Contains(cmd.Name, " ") {
			return fmt.Errorf("command %d: bad name %q", i, cmd.Name)
		}
		if seen[cmd.Name] {
			return fmt.Errorf("command %d: duplicate name %s", i, cmd.Name)
		}
		seen[cmd.Name] = true
		if _, err := duration(cmd.Interval); err != nil {
			return fmt.Errorf("command %s interval: %w", cmd.Name, err)
		}
	}

	ids := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		if s.Id == "" {
			return fmt.Errorf("schedule %d: no id", i)
		}
		if ids[s.Id] {
			return fmt.Errorf("schedule %d: duplicate id %s", i, s.Id)
		}
		ids[s.Id] = true
		if len(s.Command)+1 > c.Buffer.MaxLength {
			return fmt.Errorf("schedule %s: command doesn't fit in the buffer", s.Id)
		}
	}

	return nil
}

// DispatchConf returns the Dispatcher capacities.
func (c *Config) DispatchConf() *dispatch.Conf {
	return &dispatch.Conf{
		MaxEvents: c.MaxEvents,
		MaxLength: c.Buffer.MaxLength,
	}
}

// StationConf returns the Station parameters.
func (c *Config) StationConf(haltOnInputEOF bool) *sio.StationConf {
	tick, _ := duration(c.Tick)
	return &sio.StationConf{
		Id:             c.Id,
		Tick:           tick,
		HaltOnInputEOF: haltOnInputEOF,
	}
}

// HandlerTimeout is the limit for each script handler execution.
func (c *Config) HandlerTimeout() time.Duration {
	d, _ := duration(c.Timeout)
	return d
}

// Builtin is a command implemented by the program.  Its Interval and
// Doc are defaults that a configured command of the same name can
// override.
type Builtin struct {
	Handler  dispatch.Handler
	Interval time.Duration
	Doc      string
}

// Install registers the commands with the station.
//
// A command without code must be in builtins.  Builtins not mentioned
// in the configuration are registered afterwards, in name order, if
// there's room.
func (c *Config) Install(ctx context.Context, st *sio.Station, is interpreters.Map, builtins map[string]Builtin) error {
	used := make(map[string]bool, len(builtins))

	register := func(name string, h dispatch.Handler, interval time.Duration, doc string) error {
		if err := st.Register(name, h, interval); err != nil {
			return err
		}
		if doc != "" {
			st.Dispatcher.SetDoc(name, doc)
		}
		return nil
	}

	for _, cmd := range c.Commands {
		var (
			h           dispatch.Handler
			interval, _ = duration(cmd.Interval)
			doc         = cmd.Doc
		)
		if cmd.Code == "" {
			b, have := builtins[cmd.Name]
			if !have {
				return &sio.RegistrationError{
					Command: cmd.Name,
					Reason:  "no code and no builtin",
				}
			}
			h = b.Handler
			if cmd.Interval == "" {
				interval = b.Interval
			}
			if doc == "" {
				doc = b.Doc
			}
			used[cmd.Name] = true
		} else {
			i, err := is.Find(cmd.Interpreter)
			if err != nil {
				return fmt.Errorf("command %s: %w", cmd.Name, err)
			}
			src := map[string]interface{}{
				"code": cmd.Code,
			}
			if len(cmd.Requires) > 0 {
				src["requires"] = cmd.Requires
			}
			compiled, err := i.Compile(ctx, src)
			if err != nil {
				return fmt.Errorf("command %s: %w", cmd.Name, err)
			}
			h = interpreters.Handler(i, cmd.Name, compiled, st.Emit, c.HandlerTimeout())
		}

		if err := register(cmd.Name, h, interval, doc); err != nil {
			return err
		}
	}

	names := make([]string, 0, len(builtins))
	for name := range builtins {
		if !used[name] {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if st.Dispatcher.IsFull() {
			log.Printf("warning: no room for builtin %s", name)
			continue
		}
		b := builtins[name]
		if err := register(name, b.Handler, b.Interval, b.Doc); err != nil {
			return err
		}
	}

	return nil
}

// Schedule adds the scheduled commands to the scheduler.
func (c *Config) Schedule(s *sio.Scheduler) error {
	for _, e := range c.Schedules {
		if err := s.Add(e.Id, e.Cron, e.Command); err != nil {
			return fmt.Errorf("schedule %s: %w", e.Id, err)
		}
	}
	return nil
}
