// Copyright 2025 The Go MCP SDK Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package mcp

import (
	"context"
)

// Client is the thin public facade exposing tool/resource/prompt/completion
// operations atop a Coordinator (spec §2 "Adapter / Public API"). Higher-
// level chat integration — binding these operations into an LLM
// conversation — is explicitly out of scope for this package (spec §1).
type Client struct {
	c *Coordinator
}

// NewClient wraps coord as a Client. Callers must call Start before issuing
// any other operation.
func NewClient(coord *Coordinator) *Client {
	return &Client{c: coord}
}

// Start opens the transport and performs the initialize handshake.
func (cl *Client) Start(ctx context.Context) error { return cl.c.Start(ctx) }

// Stop closes the transport and abandons all pending work.
func (cl *Client) Stop() error { return cl.c.Stop() }

// Restart stops and restarts the underlying session.
func (cl *Client) Restart(ctx context.Context) error { return cl.c.Restart(ctx) }

// ListTools returns every tool the server advertises, following
// nextCursor to completion (spec §4.5 "Pagination").
func (cl *Client) ListTools(ctx context.Context) ([]*Tool, error) {
	var tools []*Tool
	err := cl.c.pagedRequest(ctx, methodListTools,
		func(cursor string) any { return &ListToolsParams{Cursor: cursor} },
		func(res *Result) error {
			var page ListToolsResult
			if err := res.DecodeResult(&page); err != nil {
				return &InvalidFormatError{Detail: "tools/list result: " + err.Error()}
			}
			tools = append(tools, page.Tools...)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return tools, nil
}

// CallTool invokes name with arguments, honoring the configured
// ApprovalHandler first (spec §4.5 "Human-in-the-loop"). A denial is
// reported as a *CallToolResult with IsError set, not as a Go error, so
// callers can always feed CallTool's result straight to the model.
func (cl *Client) CallTool(ctx context.Context, name string, arguments any) (*CallToolResult, error) {
	approved, reason, err := cl.c.requestApproval(ctx, name, arguments)
	if err != nil {
		return nil, err
	}
	if !approved {
		msg := "tool call was not approved"
		if reason != "" {
			msg = reason
		}
		return &CallToolResult{
			Content: []Content{&TextContent{Text: msg}},
			IsError: true,
		}, nil
	}

	res, err := cl.c.Request(ctx, methodCallTool, &CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	if rpcErr := res.RaiseError(); rpcErr != nil {
		return nil, rpcErr
	}
	var result CallToolResult
	if err := res.DecodeResult(&result); err != nil {
		return nil, &InvalidFormatError{Detail: "tools/call result: " + err.Error()}
	}
	return &result, nil
}

// ListResources returns every resource the server advertises.
func (cl *Client) ListResources(ctx context.Context) ([]*Resource, error) {
	var resources []*Resource
	err := cl.c.pagedRequest(ctx, methodListResources,
		func(cursor string) any { return &ListResourcesParams{Cursor: cursor} },
		func(res *Result) error {
			var page ListResourcesResult
			if err := res.DecodeResult(&page); err != nil {
				return &InvalidFormatError{Detail: "resources/list result: " + err.Error()}
			}
			resources = append(resources, page.Resources...)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return resources, nil
}

// ReadResource fetches the contents of the resource named by uri.
func (cl *Client) ReadResource(ctx context.Context, uri string) ([]*ResourceContents, error) {
	res, err := cl.c.Request(ctx, methodReadResource, &ReadResourceParams{URI: uri})
	if err != nil {
		return nil, err
	}
	if rpcErr := res.RaiseError(); rpcErr != nil {
		return nil, rpcErr
	}
	var result ReadResourceResult
	if err := res.DecodeResult(&result); err != nil {
		return nil, &InvalidFormatError{Detail: "resources/read result: " + err.Error()}
	}
	return result.Contents, nil
}

// ListResourceTemplates returns every resource template the server
// advertises.
func (cl *Client) ListResourceTemplates(ctx context.Context) ([]*ResourceTemplate, error) {
	var templates []*ResourceTemplate
	err := cl.c.pagedRequest(ctx, methodListResourceTemplates,
		func(cursor string) any { return &ListResourceTemplatesParams{Cursor: cursor} },
		func(res *Result) error {
			var page ListResourceTemplatesResult
			if err := res.DecodeResult(&page); err != nil {
				return &InvalidFormatError{Detail: "resources/templates/list result: " + err.Error()}
			}
			templates = append(templates, page.ResourceTemplates...)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return templates, nil
}

// SubscribeResource asks the server to send resources/updated notifications
// for uri.
func (cl *Client) SubscribeResource(ctx context.Context, uri string) error {
	res, err := cl.c.Request(ctx, methodSubscribe, &SubscribeParams{URI: uri})
	if err != nil {
		return err
	}
	return res.RaiseError()
}

// UnsubscribeResource cancels a prior SubscribeResource.
func (cl *Client) UnsubscribeResource(ctx context.Context, uri string) error {
	res, err := cl.c.Request(ctx, methodUnsubscribe, &UnsubscribeParams{URI: uri})
	if err != nil {
		return err
	}
	return res.RaiseError()
}

// ListPrompts returns every prompt the server advertises.
func (cl *Client) ListPrompts(ctx context.Context) ([]*Prompt, error) {
	var prompts []*Prompt
	err := cl.c.pagedRequest(ctx, methodListPrompts,
		func(cursor string) any { return &ListPromptsParams{Cursor: cursor} },
		func(res *Result) error {
			var page ListPromptsResult
			if err := res.DecodeResult(&page); err != nil {
				return &InvalidFormatError{Detail: "prompts/list result: " + err.Error()}
			}
			prompts = append(prompts, page.Prompts...)
			return nil
		})
	if err != nil {
		return nil, err
	}
	return prompts, nil
}

// GetPrompt renders the prompt named name with arguments.
func (cl *Client) GetPrompt(ctx context.Context, name string, arguments map[string]string) (*GetPromptResult, error) {
	res, err := cl.c.Request(ctx, methodGetPrompt, &GetPromptParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	if rpcErr := res.RaiseError(); rpcErr != nil {
		return nil, rpcErr
	}
	var result GetPromptResult
	if err := res.DecodeResult(&result); err != nil {
		return nil, &InvalidFormatError{Detail: "prompts/get result: " + err.Error()}
	}
	return &result, nil
}

// Complete requests argument-completion suggestions for ref.
func (cl *Client) Complete(ctx context.Context, ref *CompleteReference, argument CompleteParamsArgument, completionCtx *CompleteContext) (*CompletionResultDetails, error) {
	res, err := cl.c.Request(ctx, methodComplete, &CompleteParams{Ref: ref, Argument: argument, Context: completionCtx})
	if err != nil {
		return nil, err
	}
	if rpcErr := res.RaiseError(); rpcErr != nil {
		return nil, rpcErr
	}
	var result CompleteResult
	if err := res.DecodeResult(&result); err != nil {
		return nil, &InvalidFormatError{Detail: "completion/complete result: " + err.Error()}
	}
	return &result.Completion, nil
}

// SetLoggingLevel asks the server to raise or lower the severity threshold
// of notifications/message it sends.
func (cl *Client) SetLoggingLevel(ctx context.Context, level LoggingLevel) error {
	res, err := cl.c.Request(ctx, methodSetLevel, &SetLoggingLevelParams{Level: level})
	if err != nil {
		return err
	}
	return res.RaiseError()
}

// Ping sends a ping request and returns once the server replies.
func (cl *Client) Ping(ctx context.Context) error {
	res, err := cl.c.Request(ctx, methodPing, &PingParams{})
	if err != nil {
		return err
	}
	return res.RaiseError()
}
