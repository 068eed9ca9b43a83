package utils

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
)

var errNoProjectRoot = errors.New("project root not found (no go.mod above source dir)")

// FindProjectRoot walks up from this source file to the directory holding go.mod
func FindProjectRoot() (string, error) {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "", errNoProjectRoot
	}
	dir := filepath.Dir(filename)

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errNoProjectRoot
		}
		dir = parent
	}
}

// ProjectPath joins elem onto the project root, falling back to the working directory
func ProjectPath(elem ...string) string {
	root, err := FindProjectRoot()
	if err != nil {
		root = "."
	}
	return filepath.Join(append([]string{root}, elem...)...)
}
