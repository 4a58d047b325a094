package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// EngineLogPath builds the engine log file path for one session.
func EngineLogPath(logsDir string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("batcom.%s.log", sessionStart.Format("20060102_150405")),
	)
}

// APICallLogPath builds the per-AO API call log file path.
func APICallLogPath(logsDir, worldName, missionName string, aoIndex int, start time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("apicall.%s.%s.%d.%s.log",
			worldName, missionName, aoIndex, start.UTC().Format("2006-01-02T15-04-05")),
	)
}
