package util

import (
	"fmt"
	"os/exec"

	"go.uber.org/zap"
)

var requiredTools = []string{"yt-dlp", "ffmpeg", "ffprobe"}

// CheckDependencies looks up the external tools on PATH and fails when any
// required one is missing.
func CheckDependencies(logger *zap.Logger) error {
	return checkTools(logger, exec.LookPath, requiredTools)
}

func checkTools(logger *zap.Logger, lookPath func(string) (string, error), tools []string) error {
	var missing []string
	for _, name := range tools {
		path, err := lookPath(name)
		if err != nil {
			logger.Error("dependency not found", zap.String("tool", name))
			missing = append(missing, name)
			continue
		}
		logger.Info("dependency found", zap.String("tool", name), zap.String("path", path))
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required tools: %v", missing)
	}
	return nil
}
