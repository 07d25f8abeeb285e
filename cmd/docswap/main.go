// Command docswap converts PDF documents to Word and Word documents to PDF.
//
// Usage:
//
//	docswap                                  # serve the API on :3001
//	docswap -config docswap.yaml             # serve with a YAML config
//	docswap -convert report.pdf -out ./out   # convert one file and exit
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/docswap/api"
	"github.com/hazyhaar/docswap/convert"
	"github.com/hazyhaar/docswap/docpipe"
	"github.com/hazyhaar/docswap/mcpquic"
	"github.com/hazyhaar/docswap/render"
	"github.com/hazyhaar/docswap/shield"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to docswap.yaml config file")
	addr := flag.String("addr", "", "listen address (overrides config and PORT)")
	logLevel := flag.String("log-level", "", "log level: debug, info, warn, error")
	convertPath := flag.String("convert", "", "convert a single file and exit")
	outDir := flag.String("out", "", "output directory for -convert (default: next to the input)")
	plain := flag.Bool("plain", false, "skip the section classifier")
	flag.Parse()

	cfg, err := LoadConfig(*configPath, os.Getenv)
	if err != nil {
		fmt.Fprintln(os.Stderr, "docswap:", err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if *plain {
		cfg.Plain = true
	}

	// One-shot mode prints the output path on stdout; logs go to stderr.
	logOut := io.Writer(os.Stdout)
	if *convertPath != "" {
		logOut = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *convertPath != "" {
		err = runConvert(ctx, cfg, logger, *convertPath, *outDir)
	} else {
		err = serve(ctx, cfg, logger)
	}
	if err != nil {
		logger.Error("docswap: fatal", "error", err)
		os.Exit(1)
	}
}

func newRenderer(cfg *Config, logger *slog.Logger) (render.PDFRenderer, func()) {
	layout := render.DefaultLayout()
	if cfg.Renderer.Margin > 0 {
		layout.Margin = cfg.Renderer.Margin
	}
	layout.NoFooter = cfg.Renderer.NoFooter

	if cfg.Renderer.Kind == "browser" {
		br := render.NewBrowserRenderer(render.BrowserConfig{
			RemoteURL: cfg.Renderer.ChromeURL,
			Layout:    layout,
			Logger:    logger,
		})
		return br, func() {
			if err := br.Close(); err != nil {
				logger.Warn("browser close", "error", err)
			}
		}
	}
	return render.NativeRenderer{Layout: layout}, func() {}
}

func newService(cfg *Config, logger *slog.Logger, renderer render.PDFRenderer) (*convert.Service, error) {
	return convert.New(convert.Config{
		StagingDir:          cfg.StagingDir,
		MaxUploadBytes:      cfg.MaxUploadBytes,
		DeleteAfterDownload: cfg.DeleteAfterDownload,
		TTL:                 cfg.TTL,
		Renderer:            renderer,
		Plain:               cfg.Plain,
		MCPRoot:             cfg.MCP.Root,
		Logger:              logger,
	})
}

func runConvert(ctx context.Context, cfg *Config, logger *slog.Logger, path, outDir string) error {
	renderer, closeRenderer := newRenderer(cfg, logger)
	defer closeRenderer()

	staging, err := os.MkdirTemp("", "docswap-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(staging)
	cfg.StagingDir = staging

	svc, err := newService(cfg, logger, renderer)
	if err != nil {
		return err
	}
	out, err := svc.ConvertFile(ctx, path, outDir)
	if err != nil {
		return fmt.Errorf("convert %s: %w", path, err)
	}
	fmt.Println(out)
	return nil
}

func serve(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	renderer, closeRenderer := newRenderer(cfg, logger)
	defer closeRenderer()

	svc, err := newService(cfg, logger, renderer)
	if err != nil {
		return err
	}
	go svc.RunSweeper(ctx, cfg.SweepInterval)

	var opts api.Options
	opts.StaticDir = cfg.StaticDir
	if cfg.MCP.Enabled || cfg.MCP.QUICAddr != "" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "docswap", Version: version}, nil)
		docpipe.New(docpipe.Config{
			MaxFileSize: cfg.MaxUploadBytes,
			Plain:       cfg.Plain,
			Root:        cfg.MCP.Root,
			Logger:      logger,
		}).RegisterMCP(mcpSrv)
		svc.RegisterMCP(mcpSrv)

		if cfg.MCP.Enabled {
			opts.MCP = mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil)
		}
		if cfg.MCP.QUICAddr != "" {
			if err := startQUIC(ctx, cfg.MCP, mcpSrv, logger); err != nil {
				logger.Error("MCP QUIC", "error", err)
			}
		}
	}

	rl := shield.NewRateLimiter(cfg.RateLimits, "/health")
	rl.StartGC(ctx, 5*time.Minute)
	stackCfg := shield.Config{
		MaxUploadBytes: cfg.MaxUploadBytes,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimiter:    rl,
	}
	if cfg.StaticDir != "" {
		stackCfg.Headers = shield.SiteHeaders()
	}
	if cfg.MaintenanceFlag != "" {
		mm := shield.NewMaintenanceMode(cfg.MaintenanceFlag, "/health")
		mm.StartReloader(ctx, 5*time.Second)
		stackCfg.Maintenance = mm
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.New(svc, opts).Router(shield.DefaultStack(stackCfg)),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("docswap: listening",
			"addr", cfg.Addr, "staging_dir", cfg.StagingDir, "renderer", cfg.Renderer.Kind, "mcp", cfg.MCP.Enabled)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("docswap: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func startQUIC(ctx context.Context, cfg MCPConfig, mcpSrv *mcp.Server, logger *slog.Logger) error {
	var tlsCfg *tls.Config
	var err error
	if cfg.TLSCert != "" {
		tlsCfg, err = mcpquic.ServerTLSConfig(cfg.TLSCert, cfg.TLSKey)
	} else {
		tlsCfg, err = mcpquic.SelfSignedTLSConfig()
	}
	if err != nil {
		return err
	}
	l, err := mcpquic.NewListener(cfg.QUICAddr, tlsCfg, mcpSrv, logger, mcpquic.WithMaxSessions(cfg.MaxSessions))
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	go func() {
		if err := l.Serve(ctx); err != nil && ctx.Err() == nil {
			logger.Error("MCP QUIC", "error", err)
		}
	}()
	return nil
}
