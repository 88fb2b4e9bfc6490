// Package tools renders command references for people.
package tools

import (
	"fmt"
	"html"
	"io"

	"github.com/Comcast/rover/dispatch"

	md "github.com/russross/blackfriday/v2"
	"gopkg.in/yaml.v2"
)

// CommandDoc is the printable part of a dispatch.Event.
type CommandDoc struct {
	Name     string `json:"name" yaml:"name"`
	Interval string `json:"interval,omitempty" yaml:"interval,omitempty"`
	Doc      string `json:"doc,omitempty" yaml:"doc,omitempty"`
}

// CommandDocs extracts the printable parts of the events.
func CommandDocs(events []dispatch.Event) []CommandDoc {
	acc := make([]CommandDoc, 0, len(events))
	for _, e := range events {
		d := CommandDoc{
			Name: e.Name,
			Doc:  e.Doc,
		}
		if e.Interval != dispatch.IdleInterval {
			d.Interval = e.Interval.String()
		}
		acc = append(acc, d)
	}
	return acc
}

// RenderCommandsHTML writes a table of the commands.  Docs are
// Markdown.
func RenderCommandsHTML(events []dispatch.Event, out io.Writer) error {
	f := func(format string, args ...interface{}) {
		fmt.Fprintf(out, format+"\n", args...)
	}

	f(`<div class="commands"><table>`)
	for _, d := range CommandDocs(events) {
		name := html.EscapeString(d.Name)
		f(`<tr class="command"><td><span id="%s" class="commandName">%s</span></td>`, name, name)
		if d.Interval != "" {
			f(`<td><span class="interval">every %s</span></td>`, d.Interval)
		} else {
			f(`<td></td>`)
		}
		f(`<td><div class="commandDoc doc">%s</div></td></tr>`, md.Run([]byte(d.Doc)))
	}
	f(`</table></div>`)

	return nil
}

// RenderCommandsPage writes a complete HTML page.
func RenderCommandsPage(title string, events []dispatch.Event, out io.Writer, cssFiles []string) error {
	title = html.EscapeString(title)

	fmt.Fprintf(out, `<!DOCTYPE html>
<meta charset="utf-8">
<html>
  <head>
  <title>%s</title>
`, title)

	for _, cssFile := range cssFiles {
		fmt.Fprintf(out, "  <link href=\"%s\" rel=\"stylesheet\">\n", cssFile)
	}

	fmt.Fprintf(out, `
  </head>
  <body>
    <h1>%s</h1>
`, title)

	if err := RenderCommandsHTML(events, out); err != nil {
		return err
	}

	fmt.Fprintf(out, `
  </body>
</html>
`)

	return nil
}

// RenderCommandsYAML writes the commands as a YAML list.
func RenderCommandsYAML(events []dispatch.Event, out io.Writer) error {
	bs, err := yaml.Marshal(CommandDocs(events))
	if err != nil {
		return err
	}
	_, err = out.Write(bs)
	return err
}
