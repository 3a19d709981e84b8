// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/mcpcoord/go-mcp-client/internal/jsonrpc2"
)

// StdioTransportOptions configures a StdioTransport (spec §6 "stdio:
// {command, args?, env?, request_timeout?}"; request_timeout is enforced by
// the coordinator, not the transport).
type StdioTransportOptions struct {
	Command string
	Args    []string
	// Env, if non-nil, replaces the child's environment entirely. Pass
	// append(os.Environ(), "KEY=VALUE") to extend rather than replace.
	Env []string
}

// StdioTransport spawns the configured command and speaks newline-delimited
// JSON-RPC over its stdin/stdout (spec §4.3.1). There is no authentication;
// process death surfaces as a TransportError carrying the process's
// captured stderr tail for diagnostics.
type StdioTransport struct {
	opts StdioTransportOptions
}

// NewStdioTransport returns a transport that spawns opts.Command on Connect.
func NewStdioTransport(opts StdioTransportOptions) *StdioTransport {
	return &StdioTransport{opts: opts}
}

// Connect spawns the child process and returns a Connection backed by its
// stdio pipes.
func (t *StdioTransport) Connect(ctx context.Context) (Connection, error) {
	// Deliberately exec.Command, not CommandContext: the child must outlive
	// this Connect call's context. Lifetime is governed by Close instead.
	cmd := exec.Command(t.opts.Command, t.opts.Args...)
	if t.opts.Env != nil {
		cmd.Env = t.opts.Env
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &TransportError{Message: "open child stdin", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &TransportError{Message: "open child stdout", Err: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &TransportError{Message: "open child stderr", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &TransportError{Message: fmt.Sprintf("spawn %q", t.opts.Command), Err: err}
	}

	conn := &stdioConn{
		cmd:    cmd,
		stdin:  stdin,
		reader: bufio.NewReaderSize(stdout, 64*1024),
		stderr: newStderrCapture(stderr),
		lines:  make(chan []byte, 16),
		done:   make(chan struct{}),
	}
	go conn.run()
	return conn, nil
}

// stdioConn is the Connection implementation for a spawned child process.
type stdioConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
	stderr *stderrCapture

	lines chan []byte
	done  chan struct{}

	mu      sync.Mutex
	waitErr error

	closeOnce sync.Once
}

// run reads newline-delimited envelopes from the child's stdout until EOF or
// process exit, then reaps the process so Read can report its exit status.
func (c *stdioConn) run() {
	defer close(c.lines)
	for {
		line, err := c.reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			select {
			case c.lines <- append([]byte(nil), trimmed...):
			case <-c.done:
				return
			}
		}
		if err != nil {
			break
		}
	}
	waitErr := c.cmd.Wait()
	c.mu.Lock()
	c.waitErr = waitErr
	c.mu.Unlock()
}

// Read returns the next decoded envelope, or a TransportError once the child
// has exited and its output is exhausted.
func (c *stdioConn) Read(ctx context.Context) (JSONRPCMessage, error) {
	select {
	case line, ok := <-c.lines:
		if !ok {
			c.mu.Lock()
			waitErr := c.waitErr
			c.mu.Unlock()
			detail := c.stderr.tail()
			msg := "child process exited"
			if detail != "" {
				msg = fmt.Sprintf("child process exited, stderr: %s", detail)
			}
			return nil, &TransportError{Message: msg, Err: waitErr}
		}
		msg, err := jsonrpc2.DecodeMessage(line)
		if err != nil {
			return nil, &TransportError{Message: "malformed stdio envelope", Err: err}
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Write encodes msg and writes it as a single newline-terminated line to the
// child's stdin.
func (c *stdioConn) Write(ctx context.Context, msg JSONRPCMessage) error {
	data, err := jsonrpc2.EncodeMessage(msg)
	if err != nil {
		return &TransportError{Message: "encode outbound envelope", Err: err}
	}
	data = append(data, '\n')

	writeDone := make(chan error, 1)
	go func() {
		_, err := c.stdin.Write(data)
		writeDone <- err
	}()
	select {
	case err := <-writeDone:
		if err != nil {
			return &TransportError{Message: "write to child stdin", Err: err}
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals run to stop buffering and kills the child if it is still
// alive. Safe to call more than once.
func (c *stdioConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.stdin.Close()
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
	})
	return nil
}

// stderrCapture tails a child process's stderr for inclusion in diagnostic
// TransportErrors, bounding memory with a fixed-size ring of recent lines.
type stderrCapture struct {
	mu   sync.Mutex
	last []string
}

const stderrTailLines = 50

func newStderrCapture(r io.Reader) *stderrCapture {
	c := &stderrCapture{}
	go func() {
		sc := bufio.NewScanner(r)
		sc.Buffer(make([]byte, 0, 4096), 1<<20)
		for sc.Scan() {
			c.mu.Lock()
			c.last = append(c.last, sc.Text())
			if len(c.last) > stderrTailLines {
				c.last = c.last[len(c.last)-stderrTailLines:]
			}
			c.mu.Unlock()
		}
	}()
	return c
}

func (c *stderrCapture) tail() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.last, "\n")
}
