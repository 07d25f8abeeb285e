package convert

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func mcpSession(t *testing.T, svc *Service) *mcp.ClientSession {
	t.Helper()
	impl := &mcp.Implementation{Name: "convert-test", Version: "0.1.0"}
	srv := mcp.NewServer(impl, nil)
	svc.RegisterMCP(srv)

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	session, err := mcp.NewClient(impl, nil).Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })
	return session
}

func TestMCP_Convert(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, func(c *Config) { c.MCPRoot = dir })
	session := mcpSession(t, svc)

	src := filepath.Join(dir, "scan.pdf")
	if err := os.WriteFile(src, samplePDF(t), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "docswap_convert",
		Arguments: map[string]any{"path": "scan.pdf", "out_dir": "out"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := result.GetError(); err != nil {
		t.Fatalf("tool error: %v", err)
	}
	var resp struct {
		Output string `json:"output"`
	}
	if err := json.Unmarshal([]byte(result.Content[0].(*mcp.TextContent).Text), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Output != filepath.Join("out", "scan.docx") {
		t.Errorf("output = %q", resp.Output)
	}
	if _, err := os.Stat(filepath.Join(dir, resp.Output)); err != nil {
		t.Errorf("output not written: %v", err)
	}
}

func TestMCP_ConvertRejectsUnsupported(t *testing.T) {
	// WHAT: a .txt path comes back as a tool error.
	// WHY: tool failures must reach the client as results, not protocol errors.
	svc := newTestService(t, nil)
	session := mcpSession(t, svc)

	src := filepath.Join(svc.StagingDir(), "notes.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "docswap_convert",
		Arguments: map[string]any{"path": "notes.txt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.IsError {
		t.Error("expected tool error")
	}
}

func TestMCP_ConvertConfinedToRoot(t *testing.T) {
	// WHAT: input and output paths outside the root come back as tool errors
	// and nothing is written outside it.
	// WHY: the tool may be served to remote MCP clients.
	parent := t.TempDir()
	root := filepath.Join(parent, "docs")
	if err := os.Mkdir(root, 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(parent, "outside.pdf"), samplePDF(t), 0o644)
	os.WriteFile(filepath.Join(root, "inside.pdf"), samplePDF(t), 0o644)
	svc := newTestService(t, func(c *Config) { c.MCPRoot = root })
	session := mcpSession(t, svc)

	for _, args := range []map[string]any{
		{"path": "../outside.pdf"},
		{"path": "inside.pdf", "out_dir": "../escape"},
		{"path": "inside.pdf", "out_dir": "a/../../escape"},
	} {
		result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
			Name:      "docswap_convert",
			Arguments: args,
		})
		if err != nil {
			t.Fatal(err)
		}
		if !result.IsError {
			t.Errorf("%v: expected tool error", args)
		}
	}
	if _, err := os.Stat(filepath.Join(parent, "escape")); !os.IsNotExist(err) {
		t.Errorf("output directory created outside the root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(parent, "outside.docx")); !os.IsNotExist(err) {
		t.Errorf("outside input converted: %v", err)
	}
}
