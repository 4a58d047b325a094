// Package logging manages the engine's slog setup: multi-handler fan-out to
// console, engine log file and the optional OTel bridge, with dynamic AO and
// cycle attributes injected into every record.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Manager owns the engine logger and its handler chain.
type Manager struct {
	mu     sync.RWMutex
	logger *slog.Logger

	// dynamic attributes (AO id, cycle number) added to every record
	dynamic ContextProvider

	// OTel provider for flushing
	logProvider *sdklog.LoggerProvider
}

// NewManager creates an unconfigured logging manager. Logger returns
// slog.Default until Setup is called.
func NewManager() *Manager {
	return &Manager{}
}

// parseLevel converts a string log level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup initializes the logging system. file receives the engine log; when
// nil, records go to stdout instead. provider, when non-nil, adds the OTel
// log bridge.
func (m *Manager) Setup(file io.Writer, level string, provider *sdklog.LoggerProvider) {
	lvl := parseLevel(level)

	handlerOpts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.UTC().Format(time.RFC3339))
				}
			}
			return a
		},
	}

	var handlers []slog.Handler
	if file != nil {
		handlers = append(handlers, slog.NewTextHandler(file, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(os.Stdout, handlerOpts))
	}
	if provider != nil {
		handlers = append(handlers, otelslog.NewHandler("batcom-engine",
			otelslog.WithLoggerProvider(provider)))
	}

	root := NewContextHandler(NewMultiHandler(handlers...), m.currentAttrs)

	m.mu.Lock()
	m.logger = slog.New(root)
	m.logProvider = provider
	m.mu.Unlock()

	m.Logger().Info("logging initialized", "level", level)
}

// SetContext installs the dynamic attribute provider. Pass nil to clear.
func (m *Manager) SetContext(p ContextProvider) {
	m.mu.Lock()
	m.dynamic = p
	m.mu.Unlock()
}

func (m *Manager) currentAttrs() []slog.Attr {
	m.mu.RLock()
	p := m.dynamic
	m.mu.RUnlock()
	if p == nil {
		return nil
	}
	return p()
}

// Logger returns the configured slog.Logger, or slog.Default before Setup.
func (m *Manager) Logger() *slog.Logger {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.logger == nil {
		return slog.Default()
	}
	return m.logger
}

// Flush forces a flush of OTel logs if the bridge is active.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.RLock()
	provider := m.logProvider
	m.mu.RUnlock()
	if provider != nil {
		return provider.ForceFlush(ctx)
	}
	return nil
}

// WriteLog records one entry on behalf of the host's scripting layer, which
// reports a source function name and a level string.
func (m *Manager) WriteLog(functionName, data, level string) {
	logger := m.Logger()
	switch parseLevel(level) {
	case slog.LevelDebug:
		logger.Debug(data, "function", functionName)
	case slog.LevelWarn:
		logger.Warn(data, "function", functionName)
	case slog.LevelError:
		logger.Error(data, "function", functionName)
	default:
		logger.Info(data, "function", functionName)
	}
}
