package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandHomePath replaces a leading ~ with the current user's home directory.
func ExpandHomePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" {
		return path
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return path
		}
		if path == "~" {
			return home
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// ResolveStateDir normalizes the configured state directory, falling back to
// ~/.wingman when unset.
func ResolveStateDir(configured string) string {
	configured = strings.TrimSpace(configured)
	if configured == "" {
		configured = "~/.wingman"
	}
	return filepath.Clean(ExpandHomePath(configured))
}

// ResolveStateChildDir resolves a child directory under the state dir,
// using fallbackName when the configured name is empty.
func ResolveStateChildDir(stateDir, configuredName, fallbackName string) string {
	name := strings.TrimSpace(configuredName)
	if name == "" {
		name = fallbackName
	}
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(ResolveStateDir(stateDir), name)
}
