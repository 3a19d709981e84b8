// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"iter"
)

// An event is a single parsed server-sent event, as used by both the
// streamable HTTP transport's hanging GET and the legacy two-endpoint SSE
// transport.
type event struct {
	name string
	id   string
	data []byte
}

// writeEvent writes evt to w in the text/event-stream wire format, flushing
// immediately if w supports it.
func writeEvent(w io.Writer, evt event) (int, error) {
	var buf bytes.Buffer
	if evt.id != "" {
		fmt.Fprintf(&buf, "id: %s\n", evt.id)
	}
	if evt.name != "" {
		fmt.Fprintf(&buf, "event: %s\n", evt.name)
	}
	for _, line := range bytes.Split(evt.data, []byte("\n")) {
		fmt.Fprintf(&buf, "data: %s\n", line)
	}
	buf.WriteByte('\n')
	n, err := w.Write(buf.Bytes())
	if f, ok := w.(interface{ Flush() }); ok {
		f.Flush()
	}
	return n, err
}

// scanEvents parses r as a stream of server-sent events, yielding one event
// at a time. The sequence ends (with a final io.EOF error) when r is
// exhausted.
//
// Comment lines (starting with ':') and the retry field are ignored, as the
// client core implements its own reconnection backoff policy rather than
// honoring the server-suggested retry interval.
func scanEvents(r io.Reader) iter.Seq2[event, error] {
	return func(yield func(event, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

		var cur event
		var data bytes.Buffer
		haveEvent := false

		flush := func() (event, bool) {
			if !haveEvent {
				return event{}, false
			}
			cur.data = append([]byte(nil), bytes.TrimSuffix(data.Bytes(), []byte("\n"))...)
			out := cur
			cur = event{}
			data.Reset()
			haveEvent = false
			return out, true
		}

		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				if evt, ok := flush(); ok {
					if !yield(evt, nil) {
						return
					}
				}
			case len(line) > 0 && line[0] == ':':
				// comment, ignore
			case hasField(line, "id"):
				cur.id = fieldValue(line, "id")
				haveEvent = true
			case hasField(line, "event"):
				cur.name = fieldValue(line, "event")
				haveEvent = true
			case hasField(line, "data"):
				data.WriteString(fieldValue(line, "data"))
				data.WriteByte('\n')
				haveEvent = true
			case hasField(line, "retry"):
				// ignored; see doc comment.
			default:
				// Unknown field, ignore per the SSE spec.
			}
		}
		if err := scanner.Err(); err != nil {
			yield(event{}, err)
			return
		}
		if evt, ok := flush(); ok {
			if !yield(evt, nil) {
				return
			}
		}
		yield(event{}, io.EOF)
	}
}

func hasField(line, name string) bool {
	if len(line) < len(name) {
		return false
	}
	return line[:len(name)] == name && (len(line) == len(name) || line[len(name)] == ':')
}

func fieldValue(line, name string) string {
	rest := line[len(name):]
	rest = trimPrefixByte(rest, ':')
	rest = trimPrefixByte(rest, ' ')
	return rest
}

func trimPrefixByte(s string, b byte) string {
	if len(s) > 0 && s[0] == b {
		return s[1:]
	}
	return s
}
