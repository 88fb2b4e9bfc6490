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
	"testing"
)

func TestParseTopic(t *testing.T) {
	for in, want := range map[string]struct {
		topic string
		qos   byte
	}{
		"rover/commands":   {"rover/commands", 0},
		"rover/commands:1": {"rover/commands", 1},
		" rover/out ":      {"rover/out", 0},
		"":                 {"", 0},
	} {
		topic, qos := parseTopic(in)
		if topic != want.topic || qos != want.qos {
			t.Fatalf("%q: %q %d", in, topic, qos)
		}
	}
}

func TestRoute(t *testing.T) {
	c := &MQTTCouplings{
		DefaultOutboundTopic: "rover/out:1",
	}

	topic, qos, js, err := c.route(map[string]interface{}{"relay": "1 2"})
	if err != nil {
		t.Fatal(err)
	}
	if topic != "rover/out" || qos != 1 || string(js) != `{"relay":"1 2"}` {
		t.Fatal(topic, qos, string(js))
	}

	topic, qos, _, _ = c.route(map[string]interface{}{"topic": "rover/status", "qos": float64(2)})
	if topic != "rover/status" || qos != 2 {
		t.Fatal(topic, qos)
	}

	if topic, _, js, _ = c.route("hello"); topic != "rover/out" || string(js) != `"hello"` {
		t.Fatal(topic, string(js))
	}
}
