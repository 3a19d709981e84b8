// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
	"fmt"
	"log"

	internaljson "github.com/mcpcoord/go-mcp-client/internal/json"
	"github.com/mcpcoord/go-mcp-client/internal/jsonrpc2"
)

// respond sends a JSON-RPC response for a server-initiated request, with
// either a result or a protocol error, never both (spec §4.1).
func (c *Coordinator) respond(ctx context.Context, id JSONRPCID, result any, rpcErr *jsonrpc2.WireError) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return &TransportError{Message: "not connected"}
	}
	resp := &JSONRPCResponse{ID: id}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		raw, err := internaljson.Marshal(result)
		if err != nil {
			return &TransportError{Message: "encode response result", Err: err}
		}
		resp.Result = raw
	}
	return conn.Write(ctx, resp)
}

// errorResponse replies to a server-initiated request with a JSON-RPC error
// object (the coordinator's error_response operation, spec §4.5).
func (c *Coordinator) errorResponse(ctx context.Context, id JSONRPCID, code int64, message string) error {
	return c.respond(ctx, id, nil, &jsonrpc2.WireError{Code: code, Message: message})
}

// pingResponse replies to a server-initiated ping with an empty result (spec
// §4.5 "ping_response").
func (c *Coordinator) pingResponse(ctx context.Context, id JSONRPCID) error {
	return c.respond(ctx, id, struct{}{}, nil)
}

// rootsListResponse replies to a server-initiated roots/list request with
// the coordinator's configured roots (spec §4.5 "roots_list_response").
func (c *Coordinator) rootsListResponse(ctx context.Context, id JSONRPCID) error {
	if len(c.opts.Roots) == 0 {
		return c.errorResponse(ctx, id, -32000, "Roots are not enabled")
	}
	return c.respond(ctx, id, &ListRootsResult{Roots: c.opts.Roots}, nil)
}

// samplingResponse replies to a server-initiated sampling/createMessage
// request by invoking the configured SamplingHandler (spec §4.5
// "sampling_create_message_response").
func (c *Coordinator) samplingResponse(ctx context.Context, id JSONRPCID, res *Result) error {
	if !c.opts.EnableSampling || c.opts.Sampling == nil {
		return c.errorResponse(ctx, id, -32000, "Sampling is not enabled")
	}
	var params CreateMessageParams
	if err := res.DecodeParams(&params); err != nil {
		return c.errorResponse(ctx, id, jsonrpc2.CodeInvalidParams, err.Error())
	}
	result, err := c.opts.Sampling(ctx, &params)
	if err != nil {
		if _, ok := err.(*RequestCancelledError); ok {
			return nil
		}
		return c.errorResponse(ctx, id, jsonrpc2.CodeInternalError, err.Error())
	}
	return c.respond(ctx, id, result, nil)
}

// elicitationResponse replies to a server-initiated elicitation/create
// request. The configured ElicitationHandler may answer synchronously
// (returning a non-nil result), or defer the decision by returning (nil,
// nil): the coordinator then registers a pending entry in its
// ElicitationRegistry, keyed by this request's JSON-RPC id, and sends the
// eventual response itself once external code resolves it via
// ElicitationRegistry.Complete or the package-level CompleteElicitation
// (spec §4.5 "elicitation_response", §4.6).
func (c *Coordinator) elicitationResponse(ctx context.Context, id JSONRPCID, res *Result) error {
	if !c.opts.EnableElicitation || c.opts.Elicitation == nil {
		return c.errorResponse(ctx, id, -32000, "Elicitation is not enabled")
	}
	var params ElicitParams
	if err := res.DecodeParams(&params); err != nil {
		return c.errorResponse(ctx, id, jsonrpc2.CodeInvalidParams, err.Error())
	}
	result, err := c.opts.Elicitation(ctx, &params)
	if err != nil {
		if _, ok := err.(*RequestCancelledError); ok {
			return nil
		}
		return c.errorResponse(ctx, id, jsonrpc2.CodeInternalError, err.Error())
	}
	if result != nil {
		return c.respond(ctx, id, result, nil)
	}

	entryID := id.String()
	promise := c.elicitations.Store(entryID, params.RequestedSchema, c.opts.ElicitationTimeout, nil)
	promise.OnSettle(func(v any, settleErr error) {
		bg := context.Background()
		if settleErr != nil {
			c.errorResponse(bg, id, jsonrpc2.CodeInternalError, settleErr.Error())
			return
		}
		elicitResult, ok := v.(*ElicitResult)
		if !ok {
			c.errorResponse(bg, id, jsonrpc2.CodeInternalError, "malformed elicitation completion")
			return
		}
		c.respond(bg, id, elicitResult, nil)
	})
	return nil
}

// handleServerRequest dispatches one inbound server-initiated request to the
// appropriate handler, running it inside a CancellableOperation so that a
// matching notifications/cancelled interrupts it mid-flight (spec §4.5).
func (c *Coordinator) handleServerRequest(res *Result) {
	op := NewCancellableOperation()
	ctx, ok := op.Run(context.Background())
	if !ok {
		return
	}
	id := res.ID()
	key := id.String()
	c.mu.Lock()
	c.serverOps[key] = op
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.serverOps, key)
		c.mu.Unlock()
		op.Complete()
	}()

	var err error
	switch {
	case res.Ping():
		err = c.pingResponse(ctx, id)
	case res.Roots():
		err = c.rootsListResponse(ctx, id)
	case res.Sampling():
		err = c.samplingResponse(ctx, id, res)
	case res.Elicitation():
		err = c.elicitationResponse(ctx, id, res)
	default:
		err = c.errorResponse(ctx, id, jsonrpc2.CodeMethodNotFound, "Method not found")
	}
	if err != nil {
		log.Printf("mcp: server-initiated request %s (%s) failed: %v", id, res.Method(), err)
	}
}

// requestApproval consults the configured ApprovalHandler before a
// tools/call is sent. The handler may answer synchronously (returning a
// non-nil decision), or defer by returning (nil, nil): the decision is then
// registered in the ApprovalRegistry and awaited, honoring
// CoordinatorOptions.ApprovalTimeout, until external code resolves it (spec
// §4.5 "Human-in-the-loop", §4.6).
func (c *Coordinator) requestApproval(ctx context.Context, toolName string, params any) (approved bool, reason string, err error) {
	if c.opts.Approval == nil {
		return true, "", nil
	}
	decision, err := c.opts.Approval(ctx, toolName, params)
	if err != nil {
		return false, "", err
	}
	if decision != nil {
		return decision.Approved, decision.Reason, nil
	}

	id := newID()
	promise := c.approvals.Store(id, toolName, params, c.opts.ApprovalTimeout)
	v, err := promise.Await(ctx)
	if err != nil {
		c.approvals.Cancel(id, err)
		return false, "", err
	}
	d, ok := v.(approvalDecision)
	if !ok {
		return false, "", &InvalidApprovalDecisionError{Got: fmt.Sprintf("%v", v)}
	}
	return d.Approved, d.Reason, nil
}
