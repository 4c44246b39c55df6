package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
)

// ResolveDataDir finds the directory holding reference files. It tries in
// order:
// 1. The user-specified path, absolute or relative to the working directory
// 2. The same path relative to the executable directory
// 3. "data" next to the executable
func ResolveDataDir(userPath string) (string, error) {
	var candidates []string
	if userPath != "" {
		candidates = append(candidates, userPath)
	}
	if execDir, err := GetExecutableDir(); err == nil {
		if userPath != "" && !filepath.IsAbs(userPath) {
			candidates = append(candidates, filepath.Join(execDir, userPath))
		}
		candidates = append(candidates, filepath.Join(execDir, "data"))
	}

	for _, c := range candidates {
		if isDirectory(c) {
			abs := GetAbsolutePath(c)
			log.Debugf("Resolved data directory: %s", abs)
			return abs, nil
		}
	}
	return "", fmt.Errorf("no data directory among %v", candidates)
}

func isDirectory(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
