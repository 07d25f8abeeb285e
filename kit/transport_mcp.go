package kit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPDecodeResult holds the decoded request and an optional context enrichment.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// MCPDecoder extracts a typed request from a tool call.
type MCPDecoder func(*mcp.CallToolRequest) (*MCPDecodeResult, error)

// DecodeJSON returns a decoder that unmarshals the tool arguments into a new
// T and passes it as *T. Missing arguments decode as an empty object.
// validate, when non-nil, rejects the request before the endpoint runs.
func DecodeJSON[T any](validate func(*T) error) MCPDecoder {
	return func(req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
		var r T
		if args := req.Params.Arguments; len(args) > 0 {
			if err := json.Unmarshal(args, &r); err != nil {
				return nil, err
			}
		}
		if validate != nil {
			if err := validate(&r); err != nil {
				return nil, err
			}
		}
		return &MCPDecodeResult{Request: &r}, nil
	}
}

// NoArgs decodes tools that take no arguments.
func NoArgs(*mcp.CallToolRequest) (*MCPDecodeResult, error) {
	return &MCPDecodeResult{}, nil
}

// RegisterMCPTool registers an Endpoint as an MCP tool on the given server,
// wrapped in mws. Decode and endpoint errors are reported as tool errors,
// not protocol errors. Calls without a transport in their context run as
// TransportMCP.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode MCPDecoder, mws ...Middleware) {
	endpoint = Chain(mws...)(endpoint)
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		decoded, err := decode(req)
		if err != nil {
			return toolError(fmt.Errorf("invalid arguments: %w", err)), nil
		}
		if _, ok := ctx.Value(transportKey).(Transport); !ok {
			ctx = WithTransport(ctx, TransportMCP)
		}
		if decoded.EnrichCtx != nil {
			ctx = decoded.EnrichCtx(ctx)
		}

		resp, err := endpoint(ctx, decoded.Request)
		if err != nil {
			return toolError(errors.New(err.Error())), nil
		}

		data, err := json.Marshal(resp)
		if err != nil {
			return toolError(fmt.Errorf("marshal: %w", err)), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}
