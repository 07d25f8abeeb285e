package render

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/docswap/docpipe"
)

// BrowserConfig configures BrowserRenderer.
type BrowserConfig struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty = launch a local headless Chrome on first use.
	RemoteURL string

	Layout Layout
	Logger *slog.Logger
}

func (c *BrowserConfig) defaults() {
	c.Layout.defaults()
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// BrowserRenderer prints sections to PDF with headless Chrome. The browser is
// started lazily and shared by all renders until Close.
type BrowserRenderer struct {
	cfg BrowserConfig

	launch func() (wsURL string, cleanup func(), err error)

	mu      sync.Mutex
	browser *rod.Browser
	cleanup func() // stops a locally launched Chrome
}

// NewBrowserRenderer creates a BrowserRenderer. Chrome is not started until
// the first render.
func NewBrowserRenderer(cfg BrowserConfig) *BrowserRenderer {
	cfg.defaults()
	return &BrowserRenderer{cfg: cfg, launch: launchChrome}
}

// launchChrome starts a local headless Chrome. cleanup kills it and removes
// its user data dir.
func launchChrome() (string, func(), error) {
	l := launcher.New().Headless(true)
	u, err := l.Launch()
	if err != nil {
		return "", nil, err
	}
	return u, l.Cleanup, nil
}

func (r *BrowserRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	log := r.cfg.Logger
	wsURL := r.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		u, cleanup, err := r.launch()
		if err != nil {
			return nil, fmt.Errorf("%w: browser launch: %v", ErrBuild, err)
		}
		wsURL = u
		r.cleanup = cleanup
		log.Info("browser: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		r.stopLocal()
		return nil, fmt.Errorf("%w: browser connect: %v", ErrBuild, err)
	}
	r.browser = b
	return b, nil
}

// RenderPDF implements PDFRenderer.
func (r *BrowserRenderer) RenderPDF(ctx context.Context, w io.Writer, sections []docpipe.Section, meta Meta) error {
	doc, err := SectionsHTML(sections, meta, r.cfg.Layout)
	if err != nil {
		return err
	}

	b, err := r.connect()
	if err != nil {
		return err
	}

	page, err := b.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return fmt.Errorf("%w: open tab: %v", ErrBuild, err)
	}
	defer page.Close()

	if err := page.SetDocumentContent(doc); err != nil {
		return fmt.Errorf("%w: set content: %v", ErrBuild, err)
	}
	if err := page.WaitLoad(); err != nil {
		r.cfg.Logger.Warn("browser: wait load", "error", err)
	}

	width := r.cfg.Layout.Page.Width / 72
	height := r.cfg.Layout.Page.Height / 72
	stream, err := page.PDF(&proto.PagePrintToPDF{
		PaperWidth:      &width,
		PaperHeight:     &height,
		PrintBackground: true,
	})
	if err != nil {
		return fmt.Errorf("%w: print to pdf: %v", ErrBuild, err)
	}
	defer stream.Close()

	if _, err := io.Copy(w, stream); err != nil {
		return fmt.Errorf("%w: copy pdf: %v", ErrBuild, err)
	}
	return nil
}

// Close shuts the browser down.
func (r *BrowserRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	r.stopLocal()
	return err
}

// stopLocal kills a launched Chrome. Callers hold r.mu.
func (r *BrowserRenderer) stopLocal() {
	if r.cleanup != nil {
		r.cleanup()
		r.cleanup = nil
	}
}
