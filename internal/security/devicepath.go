// Package security validates operator-supplied paths before they are opened.
package security

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNotDevice is returned for paths that do not name a serial device node.
var ErrNotDevice = errors.New("not a serial device path")

// DeviceDir is the directory serial device nodes must live under.
const DeviceDir = "/dev"

// devicePrefixes are the node names accepted under DeviceDir.
var devicePrefixes = []string{"tty", "serial", "cu."}

// ValidateDevicePath checks that path names a serial device such as
// /dev/ttyUSB0, /dev/serial0, /dev/serial/by-id/... or /dev/cu.usbserial.
func ValidateDevicePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty", ErrNotDevice)
	}
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) {
		return fmt.Errorf("%w: %s is not absolute", ErrNotDevice, path)
	}
	rel, err := filepath.Rel(DeviceDir, clean)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s is outside %s", ErrNotDevice, path, DeviceDir)
	}
	for _, p := range devicePrefixes {
		if strings.HasPrefix(rel, p) {
			return ValidatePathWithinDirectory(clean, DeviceDir)
		}
	}
	return fmt.Errorf("%w: %s", ErrNotDevice, path)
}

// ValidatePathWithinDirectory checks that filePath resolves inside safeDir.
// Symlinks are resolved on the path, or on its nearest existing parent when
// the path itself does not exist yet.
func ValidatePathWithinDirectory(filePath, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(filePath))
	if err != nil {
		return fmt.Errorf("failed to resolve absolute path: %w", err)
	}
	absSafeDir, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory path: %w", err)
	}

	canonicalPath := absPath
	if resolved, err := filepath.EvalSymlinks(absPath); err == nil {
		canonicalPath = resolved
	} else {
		for check := absPath; ; {
			parent := filepath.Dir(check)
			if parent == check {
				break
			}
			if resolved, err := filepath.EvalSymlinks(parent); err == nil {
				rel, _ := filepath.Rel(parent, absPath)
				canonicalPath = filepath.Join(resolved, rel)
				break
			}
			check = parent
		}
	}

	canonicalSafeDir, err := filepath.EvalSymlinks(absSafeDir)
	if err != nil {
		return fmt.Errorf("failed to resolve safe directory symlinks: %w", err)
	}

	rel, err := filepath.Rel(canonicalSafeDir, canonicalPath)
	if err != nil {
		return fmt.Errorf("path is outside safe directory: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path traversal detected: %s attempts to escape %s", filePath, safeDir)
	}
	return nil
}
