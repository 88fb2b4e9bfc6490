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

// Package main is a single-station rover process: a command
// dispatcher coupled to stdio, MQTT, WebSockets, TCP, or a serial
// port.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/Comcast/rover/config"
	"github.com/Comcast/rover/dispatch"
	"github.com/Comcast/rover/interpreters"
	"github.com/Comcast/rover/sio"
	"github.com/Comcast/rover/tools"

	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {

	var (
		coupling = flag.String("io", "std", `IO protocol: "std", "mq", "ws", "tcp", or "serial"`)
		confFile = flag.String("config", "", "Optional configuration filename (YAML or TOML)")

		commands    = flag.String("commands", "", `Print the command reference ("html" or "yaml") and exit`)
		statusTopic = flag.String("status-topic", "", "Optional topic for status messages")

		logFile    = flag.String("log-file", "", "Optional log filename (rotated)")
		logMaxSize = flag.Int("log-max-size", 10, "Log file size (MB) before rotation")

		wait      = flag.Duration("wait", time.Second, "Wait this long before shutting down couplings")
		haltOnEOF = flag.Bool("halt-on-eof", false, "Stop on input EOF")
		verbose   = flag.Bool("v", false, "Verbose")
		help      = flag.Bool("h", false, "Get usage")
	)

	flag.Parse()

	if *help {
		flag.PrintDefaults()

		{
			fmt.Fprintf(os.Stderr, "\n-io std (default):\n\n")
			_, fs := NewStdCouplings(nil)
			fs.PrintDefaults()
		}

		{
			fmt.Fprintf(os.Stderr, "\n-io mq:\n\n")
			_, fs := NewMQTTCouplings(nil)
			fs.PrintDefaults()
		}

		{
			fmt.Fprintf(os.Stderr, "\n-io ws:\n\n")
			_, fs := NewWebSocketCouplings(nil)
			fs.PrintDefaults()
		}

		{
			fmt.Fprintf(os.Stderr, "\n-io tcp:\n\n")
			_, fs := NewTCPCouplings(nil)
			fs.PrintDefaults()
		}

		{
			fmt.Fprintf(os.Stderr, "\n-io serial:\n\n")
			_, fs := NewSerialCouplings(nil)
			fs.PrintDefaults()
		}

		os.Exit(0)
	}

	if *logFile != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   *logFile,
			MaxSize:    *logMaxSize,
			MaxBackups: 3,
		})
	}

	conf := config.Default()
	if *confFile != "" {
		c, err := config.Load(*confFile)
		if err != nil {
			log.Fatal(err)
		}
		conf = c
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *commands != "" {
		if err := printCommands(ctx, conf, *commands, os.Stdout); err != nil {
			log.Fatal(err)
		}
		os.Exit(0)
	}

	var (
		cio sio.Couplings
		ws  *WebSocketCouplings
		std *sio.Stdio
	)
	switch *coupling {
	case "std":
		std, _ = NewStdCouplings(flag.Args())
		cio = std
	case "mq", "mqtt":
		c, _ := NewMQTTCouplings(flag.Args())
		cio = c
	case "ws":
		ws, _ = NewWebSocketCouplings(flag.Args())
		cio = ws
	case "tcp":
		c, _ := NewTCPCouplings(flag.Args())
		cio = c
	case "serial":
		c, _ := NewSerialCouplings(flag.Args())
		cio = c
	default:
		log.Fatalf("unknown io: '%s'", *coupling)
	}

	d := dispatch.New(conf.DispatchConf())
	d.Verbose = *verbose

	// The WebSocket server reads Events as soon as it starts.
	if ws != nil {
		ws.Events = func() []dispatch.Event {
			d.Lock()
			defer d.Unlock()
			return d.Events()
		}
	}

	if err := cio.Start(ctx); err != nil {
		log.Fatal(err)
	}

	st, err := sio.NewStation(ctx, conf.StationConf(*haltOnEOF), d, cio)
	if err != nil {
		log.Fatal(err)
	}
	st.Verbose = *verbose

	tank := NewTank(st.Emit)
	tank.StatusTopic = *statusTopic

	if err = conf.Install(ctx, st, interpreters.Standard(), tank.Builtins(d)); err != nil {
		log.Fatal(err)
	}

	sched := sio.NewScheduler(st.Inject)
	sched.Verbose = *verbose
	if err = conf.Schedule(sched); err != nil {
		log.Fatal(err)
	}
	go sched.Run(ctx)

	if std != nil {
		go func() {
			<-std.InputEOF
			log.Printf("input EOF (waiting %v)", *wait)
			time.Sleep(*wait)
			cancel()
		}()
	}

	if err := st.Loop(ctx); err != nil {
		log.Fatal(err)
	}

	cancel()
	if err = cio.Stop(context.Background()); err != nil {
		log.Printf("error from io.Stop: %v", err)
	}
}

// printCommands renders the commands that the configuration would
// install.
func printCommands(ctx context.Context, conf *config.Config, format string, out io.Writer) error {
	d := dispatch.New(conf.DispatchConf())
	st, err := sio.NewStation(ctx, nil, d, &nullCouplings{})
	if err != nil {
		return err
	}
	tank := NewTank(st.Emit)
	if err = conf.Install(ctx, st, interpreters.Standard(), tank.Builtins(d)); err != nil {
		return err
	}
	switch format {
	case "html":
		return tools.RenderCommandsPage("Commands", d.Events(), out, nil)
	case "yaml":
		return tools.RenderCommandsYAML(d.Events(), out)
	default:
		return fmt.Errorf("unknown format '%s'", format)
	}
}

// nullCouplings has channels that nothing uses.
type nullCouplings struct{}

func (c *nullCouplings) Start(ctx context.Context) error { return nil }
func (c *nullCouplings) Stop(ctx context.Context) error  { return nil }
func (c *nullCouplings) IO(ctx context.Context) (chan []byte, chan *sio.Result, chan bool, error) {
	return make(chan []byte), make(chan *sio.Result), make(chan bool), nil
}
