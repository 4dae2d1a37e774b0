package source

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupTemps removes stale temp files created by the resolver and the
// save pipeline (middlesplit-src-*, middlesplit-*) older than maxAge.
// A crashed worker can leave these behind.
func CleanupTemps(maxAge time.Duration) {
	dir := os.TempDir()
	now := time.Now()
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "middlesplit-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= maxAge {
			_ = os.Remove(filepath.Join(dir, e.Name()))
		}
	}
}
