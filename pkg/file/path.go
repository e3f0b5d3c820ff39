package file

import (
	"path/filepath"
	"strings"
)

// EnsureExt appends ext to name when name carries no extension of its own.
// Browsers upload recordings as "blob", which speech servers cannot sniff.
func EnsureExt(name, ext string) string {
	if name == "" {
		return name
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	base := filepath.Base(name)
	if lastDot := strings.LastIndex(base, "."); lastDot > 0 && lastDot < len(base)-1 {
		return name
	}
	return strings.TrimSuffix(name, ".") + ext
}
