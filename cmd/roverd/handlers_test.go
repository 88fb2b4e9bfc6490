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
	"strings"
	"testing"

	"github.com/Comcast/rover/config"
	"github.com/Comcast/rover/dispatch"
	"github.com/Comcast/rover/interpreters"
	"github.com/Comcast/rover/sio"
)

func newTestTank(t *testing.T) (*Tank, *sio.Station) {
	ctx := context.Background()
	conf := config.Default()
	d := dispatch.New(conf.DispatchConf())
	st, err := sio.NewStation(ctx, conf.StationConf(false), d, &nullCouplings{})
	if err != nil {
		t.Fatal(err)
	}
	tank := NewTank(st.Emit)
	if err = conf.Install(ctx, st, interpreters.Standard(), tank.Builtins(d)); err != nil {
		t.Fatal(err)
	}
	return tank, st
}

func TestMove(t *testing.T) {
	_, st := newTestTank(t)
	ctx := context.Background()

	r := st.ProcessMsg(ctx, []byte("MOVE  SERVO 3   90"))
	if !r.Executed || len(r.Emitted) != 1 {
		t.Fatal(sio.JS(r))
	}
	if got := r.Emitted[0].(map[string]interface{})["relay"]; got != "SERVO 3   90" {
		t.Fatalf("%q", got)
	}

	// Nothing to relay.
	if r = st.ProcessMsg(ctx, []byte("MOVE")); !r.Executed || len(r.Emitted) != 0 {
		t.Fatal(sio.JS(r))
	}
}

func TestSend(t *testing.T) {
	tank, st := newTestTank(t)
	tank.StatusTopic = "rover/status"
	ctx := context.Background()

	good := "SEND 21.5 -3.25 1 2 3 4 5 6 7 8 9 10 11 12 13"
	r := st.ProcessMsg(ctx, []byte(good))
	if !r.Executed || len(r.Emitted) != 1 {
		t.Fatal(sio.JS(r))
	}
	m := r.Emitted[0].(map[string]interface{})
	temps := m["temperatures"].([]float64)
	if temps[0] != 21.5 || temps[1] != -3.25 {
		t.Fatal(temps)
	}
	readings := m["readings"].([]int)
	if len(readings) != StatusReadings || readings[0] != 1 || readings[12] != 13 {
		t.Fatal(readings)
	}
	if m["topic"] != "rover/status" {
		t.Fatal(m)
	}
	if e := m["left"].(Engine); e.Direction != Stopped || e.Speed != DefaultSpeed {
		t.Fatal(e)
	}

	for _, bad := range []string{
		"SEND 21 -3.25 1 2 3 4 5 6 7 8 9 10 11 12 13",
		"SEND 21.5 -3.25 1 2 3 4 5 6 7 8 9 10 11 12",
		"SEND 21.5 -3.25 1 2 3 4 5 6 7 8 9 10 11 12 x",
	} {
		if r = st.ProcessMsg(ctx, []byte(bad)); !r.Executed || len(r.Emitted) != 0 {
			t.Fatal(bad, sio.JS(r))
		}
	}
}

func TestTracks(t *testing.T) {
	tank, st := newTestTank(t)
	ctx := context.Background()

	for _, cmd := range []string{"FORWARDL", "BACKWARDR"} {
		if r := st.ProcessMsg(ctx, []byte(cmd)); !r.Executed {
			t.Fatal(cmd)
		}
	}
	if tank.Left.Direction != Forward || tank.Right.Direction != Backward {
		t.Fatal(tank.Left, tank.Right)
	}
	st.ProcessMsg(ctx, []byte("STOPL"))
	if tank.Left.Direction != Stopped {
		t.Fatal(tank.Left)
	}

	st.ProcessMsg(ctx, []byte("FASTER"))
	tank.ramp(ctx, nil)
	tank.ramp(ctx, nil)
	if tank.Left.Speed != DefaultSpeed+2 || tank.Right.Speed != DefaultSpeed+2 {
		t.Fatal(tank.Left, tank.Right)
	}
	st.ProcessMsg(ctx, []byte("STEADY"))
	tank.ramp(ctx, nil)
	if tank.Left.Speed != DefaultSpeed+2 {
		t.Fatal(tank.Left)
	}

	st.ProcessMsg(ctx, []byte("SLOWER"))
	tank.Left.Speed = 1
	tank.ramp(ctx, nil)
	tank.ramp(ctx, nil)
	if tank.Left.Speed != 0 || tank.Right.Speed != DefaultSpeed {
		t.Fatal(tank.Left, tank.Right)
	}

	if e := st.Dispatcher.Event("RAMP"); e == nil || e.Interval != SpeedChangeInterval {
		t.Fatal(e)
	}
}

func TestPeriodicBuiltins(t *testing.T) {
	tank, _ := newTestTank(t)
	ctx := context.Background()

	h := tank.Builtins(dispatch.New(nil))
	for _, name := range []string{"FORWARDL", "BACKWARDR", "FASTER", "MOVE", "SEND", "MP3"} {
		h[name].Handler(ctx, nil)
	}
	if tank.Left.Direction != Stopped || tank.Right.Direction != Stopped || tank.Change != 0 {
		t.Fatal(tank.Left, tank.Right, tank.Change)
	}
}

func TestMP3(t *testing.T) {
	_, st := newTestTank(t)
	ctx := context.Background()

	r := st.ProcessMsg(ctx, []byte("MP3 15 1 2"))
	if len(r.Emitted) != 1 {
		t.Fatal(sio.JS(r))
	}
	got := r.Emitted[0].(map[string]interface{})["frame"].(string)
	if want := hex.EncodeToString([]byte{0x7e, 0xff, 0x06, 15, 0x00, 1, 2, 0xef}); got != want {
		t.Fatal(got, want)
	}

	if r = st.ProcessMsg(ctx, []byte("MP3 256 1 2")); len(r.Emitted) != 0 {
		t.Fatal(sio.JS(r))
	}
}

func TestHelp(t *testing.T) {
	_, st := newTestTank(t)
	r := st.ProcessMsg(context.Background(), []byte("HELP"))
	if len(r.Emitted) != 1 {
		t.Fatal(sio.JS(r))
	}
	js := sio.JS(r.Emitted[0])
	for _, name := range []string{"MOVE", "SEND", "RAMP", "HELP"} {
		if !strings.Contains(js, `"name":"`+name+`"`) {
			t.Fatal(name, js)
		}
	}
}
