package telemetry

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/batcom/engine/internal/model"
)

const blockDelimiter = "==============================================================="

// APILogger appends request/response blocks to the per-AO API call log.
// The file is created lazily on the first call so an AO with no
// consultations leaves no file behind. Write failures are logged and
// swallowed; telemetry never blocks ingestion.
type APILogger struct {
	path   string
	file   *os.File
	header string
	logger *slog.Logger
}

// NewAPILogger prepares a logger for one AO. header lines identify the AO
// in the file preamble.
func NewAPILogger(path, aoID, worldName, missionName string, logger *slog.Logger) *APILogger {
	return &APILogger{
		path: path,
		header: fmt.Sprintf("AO: %s\nWorld: %s\nMission: %s\nOpened: %s\n",
			aoID, worldName, missionName, time.Now().UTC().Format(time.RFC3339)),
		logger: logger,
	}
}

func (l *APILogger) ensureOpen() bool {
	if l.file != nil {
		return true
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		l.logger.Warn("api call log open failed", "path", l.path, "error", err)
		return false
	}
	l.file = f
	l.write(blockDelimiter + "\n" + l.header)
	return true
}

func (l *APILogger) write(s string) {
	if _, err := l.file.WriteString(s); err != nil {
		l.logger.Warn("api call log write failed", "path", l.path, "error", err)
	}
}

// Call appends one request/response block and flushes it.
func (l *APILogger) Call(cycle int, missionTime float64, usage model.TokenUsage, requestJSON, responseJSON []byte, thoughts string) {
	if !l.ensureOpen() {
		return
	}
	l.write(blockDelimiter + "\n")
	l.write(fmt.Sprintf("Timestamp: %s\n", time.Now().UTC().Format(time.RFC3339)))
	l.write(fmt.Sprintf("Cycle: %d\n", cycle))
	l.write(fmt.Sprintf("MissionTime: %.1f\n", missionTime))
	l.write(fmt.Sprintf("Provider: %s\n", usage.Provider))
	l.write(fmt.Sprintf("Model: %s\n", usage.Model))
	l.write(fmt.Sprintf("Tokens: input=%d output=%d cached=%d total=%d\n",
		usage.InputTokens, usage.OutputTokens, usage.CachedTokens, usage.TotalTokens))
	l.write(fmt.Sprintf("LatencyMs: %d\n", usage.LatencyMs))
	l.write("--- Request ---\n")
	l.write(string(requestJSON) + "\n")
	l.write("--- Response ---\n")
	l.write(string(responseJSON) + "\n")
	if thoughts != "" {
		l.write("--- Thoughts ---\n")
		l.write(thoughts + "\n")
	}
	if err := l.file.Sync(); err != nil {
		l.logger.Warn("api call log flush failed", "path", l.path, "error", err)
	}
}

// Close writes the footer and closes the file. Safe to call when no block
// was ever written; nothing is created in that case.
func (l *APILogger) Close() {
	if l.file == nil {
		return
	}
	l.write(blockDelimiter + "\n")
	l.write(fmt.Sprintf("Closed: %s\n", time.Now().UTC().Format(time.RFC3339)))
	if err := l.file.Close(); err != nil {
		l.logger.Warn("api call log close failed", "path", l.path, "error", err)
	}
	l.file = nil
}
