package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath builds the per-session log file path, e.g.
// logs/scaleformeter_server.20261015_120000.log.
func LogFilePath(logsDir, binaryName string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", binaryName, sessionStart.Format("20060102_150405")),
	)
}
