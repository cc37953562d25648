// Package platform provides OS-aware helpers for data paths.
// Code that needs to behave differently per OS belongs here, not behind
// runtime.GOOS checks scattered across the codebase.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultWorkDir returns the OS-appropriate data directory for budgetguard.
//
//	Linux:   ~/.local/share/budgetguard
//	macOS:   ~/Library/Application Support/BudgetGuard
//	Windows: %APPDATA%\BudgetGuard
//
// If WORK_DIR env var is set, that takes priority (used in Docker).
func DefaultWorkDir() string {
	if env := os.Getenv("WORK_DIR"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(appData, "BudgetGuard")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "BudgetGuard")
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "budgetguard")
		}
		return filepath.Join(home, ".local", "share", "budgetguard")
	}
}

// EnsureDir creates a directory and all parents if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
