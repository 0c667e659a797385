package deps

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveSibling returns the command for name, preferring a binary that
// sits next to primary. Static ffmpeg builds ship ffprobe alongside ffmpeg,
// and using the matching pair avoids version skew with a system ffprobe on
// PATH. When no sibling exists name is returned unchanged.
func ResolveSibling(primary, name string) string {
	primary = strings.TrimSpace(primary)
	if primary == "" {
		return name
	}
	resolved, err := exec.LookPath(primary)
	if err != nil {
		return name
	}
	candidate := filepath.Join(filepath.Dir(resolved), executableName(name))
	if info, err := os.Stat(candidate); err == nil && isExecutable(info) {
		return candidate
	}
	return name
}

func executableName(base string) string {
	if runtime.GOOS == "windows" && filepath.Ext(base) == "" {
		return base + ".exe"
	}
	return base
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
