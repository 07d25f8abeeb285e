package shield

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"
)

const defaultMaintenanceMessage = "Service under maintenance, please try again shortly."

// MaintenanceMode returns 503 Service Unavailable while a flag file exists.
// The file's contents, when non-empty, replace the default message. The flag
// is polled and cached in memory, so operators can toggle it with touch/rm.
type MaintenanceMode struct {
	flagPath string
	active   atomic.Bool
	message  atomic.Value // string
	exclude  []string     // path prefixes that bypass maintenance (e.g. /health)
}

// NewMaintenanceMode creates a maintenance mode checker for flagPath. Paths
// matching any of excludePrefixes are never blocked.
func NewMaintenanceMode(flagPath string, excludePrefixes ...string) *MaintenanceMode {
	m := &MaintenanceMode{
		flagPath: flagPath,
		exclude:  excludePrefixes,
	}
	m.message.Store(defaultMaintenanceMessage)
	m.reload()
	return m
}

// Active reports whether maintenance mode is currently on.
func (m *MaintenanceMode) Active() bool {
	return m.active.Load()
}

// Message returns the current maintenance message.
func (m *MaintenanceMode) Message() string {
	s, _ := m.message.Load().(string)
	return s
}

// StartReloader re-reads the flag every interval until ctx is done.
func (m *MaintenanceMode) StartReloader(ctx context.Context, interval time.Duration) {
	tick := time.NewTicker(interval)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				m.reload()
			}
		}
	}()
}

func (m *MaintenanceMode) reload() {
	data, err := os.ReadFile(m.flagPath)
	was := m.active.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("maintenance: read flag", "path", m.flagPath, "error", err)
		}
		m.active.Store(false)
		if was {
			slog.Info("maintenance: mode DISABLED")
		}
		return
	}

	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = defaultMaintenanceMessage
	}
	m.message.Store(msg)
	m.active.Store(true)
	if !was {
		slog.Warn("maintenance: mode ENABLED", "message", msg)
	}
}

// Middleware blocks requests with a 503 JSON error while maintenance mode is
// active. Excluded prefixes pass through.
func (m *MaintenanceMode) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.active.Load() {
			next.ServeHTTP(w, r)
			return
		}
		for _, prefix := range m.exclude {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "300")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"error": m.Message()})
	})
}
