package docpipe

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docswap/horosafe"
	"github.com/hazyhaar/docswap/kit"
)

// RegisterMCP registers docpipe tools on an MCP server.
func (p *Pipeline) RegisterMCP(srv *mcp.Server) {
	p.registerReadTool(srv)
	p.registerClassifyTool(srv)
	p.registerFormatsTool(srv)
}

// InputSchema builds a JSON object schema for MCP tool arguments.
func InputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// --- read ---

type readReq struct {
	Path string `json:"path"`
}

func (p *Pipeline) registerReadTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docswap_read",
		Description: "Read a PDF or DOCX file into sections of headings, paragraphs and lists.",
		InputSchema: InputSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "File path to read, relative to the server's document root"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*readReq)
		path, err := horosafe.SafePath(p.cfg.Root, r.Path)
		if err != nil {
			return nil, err
		}
		return p.Read(ctx, path)
	}

	decode := kit.DecodeJSON(func(r *readReq) error {
		if r.Path == "" {
			return errors.New("path is required")
		}
		return nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decode, kit.Logging(p.logger, tool.Name))
}

// --- classify ---

type classifyReq struct {
	Text string `json:"text"`
}

func (p *Pipeline) registerClassifyTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docswap_classify",
		Description: "Partition plain text into sections using the heading/list/paragraph line heuristic.",
		InputSchema: InputSchema(map[string]any{
			"text": map[string]any{"type": "string", "description": "Plain text, one logical line per line"},
		}, []string{"text"}),
	}

	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*classifyReq)
		res := ClassifyWithStats(SplitLines(r.Text))
		return map[string]any{"sections": res.Sections, "dropped": res.Dropped}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.DecodeJSON[classifyReq](nil), kit.Logging(p.logger, tool.Name))
}

// --- formats ---

func (p *Pipeline) registerFormatsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docswap_formats",
		Description: "List the supported input formats and what each converts to.",
		InputSchema: InputSchema(map[string]any{}, nil),
	}

	endpoint := func(_ context.Context, _ any) (any, error) {
		conversions := map[string]string{}
		for _, f := range SupportedFormats() {
			conversions[f] = string(Format(f).Target())
		}
		return map[string]any{"formats": SupportedFormats(), "conversions": conversions}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, kit.NoArgs)
}
