// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func collectEvents(t *testing.T, r io.Reader) ([]event, error) {
	t.Helper()
	var events []event
	var finalErr error
	for evt, err := range scanEvents(r) {
		if err != nil {
			finalErr = err
			break
		}
		events = append(events, evt)
	}
	return events, finalErr
}

func TestScanEventsSingleEvent(t *testing.T) {
	r := strings.NewReader("id: 1\nevent: message\ndata: hello\n\n")
	events, err := collectEvents(t, r)
	if err != io.EOF {
		t.Fatalf("final error = %v, want io.EOF", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].id != "1" || events[0].name != "message" || string(events[0].data) != "hello" {
		t.Errorf("event = %+v", events[0])
	}
}

func TestScanEventsMultilineData(t *testing.T) {
	r := strings.NewReader("data: line1\ndata: line2\n\n")
	events, _ := collectEvents(t, r)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if string(events[0].data) != "line1\nline2" {
		t.Errorf("data = %q, want %q", events[0].data, "line1\nline2")
	}
}

func TestScanEventsIgnoresCommentsAndRetry(t *testing.T) {
	r := strings.NewReader(": this is a comment\nretry: 5000\ndata: payload\n\n")
	events, _ := collectEvents(t, r)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if string(events[0].data) != "payload" {
		t.Errorf("data = %q, want payload", events[0].data)
	}
}

func TestScanEventsMultipleEventsInStream(t *testing.T) {
	r := strings.NewReader("data: first\n\ndata: second\n\n")
	events, _ := collectEvents(t, r)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if string(events[0].data) != "first" || string(events[1].data) != "second" {
		t.Errorf("events = %+v", events)
	}
}

func TestWriteEventThenScanRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	orig := event{id: "42", name: "stop", data: []byte("bye\nnow")}
	if _, err := writeEvent(&buf, orig); err != nil {
		t.Fatalf("writeEvent: %v", err)
	}
	events, err := collectEvents(t, &buf)
	if err != io.EOF {
		t.Fatalf("final error = %v, want io.EOF", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	got := events[0]
	if got.id != orig.id || got.name != orig.name || string(got.data) != string(orig.data) {
		t.Errorf("round trip = %+v, want %+v", got, orig)
	}
}

func TestScanEventsNoTrailingBlankLineStillFlushes(t *testing.T) {
	r := strings.NewReader("data: no-trailing-newline")
	events, err := collectEvents(t, r)
	if err != io.EOF {
		t.Fatalf("final error = %v, want io.EOF", err)
	}
	if len(events) != 1 || string(events[0].data) != "no-trailing-newline" {
		t.Errorf("events = %+v", events)
	}
}
