package convert

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docswap/docpipe"
	"github.com/hazyhaar/docswap/horosafe"
	"github.com/hazyhaar/docswap/kit"
)

type convertReq struct {
	Path   string `json:"path"`
	OutDir string `json:"out_dir"`
}

// RegisterMCP registers the docswap_convert tool on an MCP server. Tool paths
// are relative to Config.MCPRoot and cannot leave it.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "docswap_convert",
		Description: "Convert a PDF under the server's document root to DOCX, or a DOCX to PDF. Returns the written path relative to the root.",
		InputSchema: docpipe.InputSchema(map[string]any{
			"path":    map[string]any{"type": "string", "description": "Input .pdf or .docx file, relative to the document root"},
			"out_dir": map[string]any{"type": "string", "description": "Output directory under the document root (default: next to the input)"},
		}, []string{"path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*convertReq)
		root := s.cfg.MCPRoot
		in, err := horosafe.SafePath(root, r.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: path: %w", ErrValidation, err)
		}
		var outDir string
		if r.OutDir != "" {
			if outDir, err = horosafe.SafePath(root, r.OutDir); err != nil {
				return nil, fmt.Errorf("%w: out_dir: %w", ErrValidation, err)
			}
		}
		out, err := s.ConvertFile(ctx, in, outDir)
		if err != nil {
			return nil, err
		}
		if rel, err := filepath.Rel(root, out); err == nil {
			out = rel
		}
		return map[string]string{"input": r.Path, "output": out}, nil
	}

	decode := kit.DecodeJSON(func(r *convertReq) error {
		if r.Path == "" {
			return errors.New("path is required")
		}
		return nil
	})

	kit.RegisterMCPTool(srv, tool, endpoint, decode, kit.Logging(s.logger, tool.Name))
}
