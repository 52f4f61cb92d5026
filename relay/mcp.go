// CLAUDE:SUMMARY Registers the relay MCP tools: state, reset, set_code, events.
package relay

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/inviterelay/kit"
)

// RegisterMCP registers the operator tools on an MCP server.
func (o *Operator) RegisterMCP(srv *mcp.Server) {
	ep := o.Endpoints()

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "inviterelay_state",
		Description: "Current invite code, attempt count and retry limit.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, ep.State, noArgs)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "inviterelay_reset",
		Description: "Clear the stored invite code and its attempt counter.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, ep.Reset, noArgs)

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "inviterelay_set_code",
		Description: "Store an invite code by hand. A new code starts with zero attempts; the current code keeps its count.",
		InputSchema: inputSchema(map[string]any{
			"code": map[string]any{"type": "string", "description": "Invite code to submit"},
		}, []string{"code"}),
	}, ep.SetCode, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r, err := kit.DecodeArgs[SetCodeRequest](req)
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: r}, nil
	})

	kit.RegisterMCPTool(srv, &mcp.Tool{
		Name:        "inviterelay_events",
		Description: "Recent relay events (code changes, attempts, skips), newest first.",
		InputSchema: inputSchema(map[string]any{
			"limit": map[string]any{"type": "integer", "description": "Max events (default 50)"},
		}, nil),
	}, ep.Events, func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		r, err := kit.DecodeArgs[EventsRequest](req)
		if err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: r}, nil
	})
}

func noArgs(*mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
	return &kit.MCPDecodeResult{}, nil
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
