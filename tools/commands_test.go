package tools

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Comcast/rover/buffer"
	"github.com/Comcast/rover/dispatch"
)

func testEvents() []dispatch.Event {
	d := dispatch.New(nil)
	h := func(ctx context.Context, b *buffer.Buffer) {}
	d.AddEvent("MOVE", h, dispatch.IdleInterval)
	d.SetDoc("MOVE", "Relay *everything* after the command.")
	d.AddEvent("BEAT", h, 50*time.Millisecond)
	return d.Events()
}

func TestRenderCommandsHTML(t *testing.T) {
	out := bytes.NewBuffer(make([]byte, 0, 1024*8))
	if err := RenderCommandsPage("Rover <1>", testEvents(), out, []string{"rover.css"}); err != nil {
		t.Fatal(err)
	}
	page := out.String()
	for _, want := range []string{
		"<title>Rover &lt;1&gt;</title>",
		`<link href="rover.css" rel="stylesheet">`,
		`<span id="MOVE" class="commandName">MOVE</span>`,
		"<em>everything</em>",
		"every 50ms",
	} {
		if !strings.Contains(page, want) {
			t.Fatalf("missing %q in %s", want, page)
		}
	}
}

func TestRenderCommandsYAML(t *testing.T) {
	out := &bytes.Buffer{}
	if err := RenderCommandsYAML(testEvents(), out); err != nil {
		t.Fatal(err)
	}
	want := `- name: MOVE
  doc: Relay *everything* after the command.
- name: BEAT
  interval: 50ms
`
	if got := out.String(); got != want {
		t.Fatalf("%q", got)
	}
}
