package app

import (
	"os"
	"path/filepath"
)

// clientDirName is the browser client checked out next to the server.
const clientDirName = "client"

// resolveClientDir returns configured when set. Otherwise it looks for a
// client checkout beside or above the working directory, then the
// executable. An empty result serves the API without static files.
func resolveClientDir(configured string) string {
	if configured != "" {
		return configured
	}
	var bases []string
	if cwd, err := os.Getwd(); err == nil {
		bases = append(bases, cwd)
	}
	if exe, err := os.Executable(); err == nil {
		bases = append(bases, filepath.Dir(exe))
	}
	for _, base := range bases {
		if dir, ok := clientDirUnder(base); ok {
			return dir
		}
	}
	return ""
}

func clientDirUnder(base string) (string, bool) {
	for _, candidate := range []string{
		filepath.Join(base, clientDirName),
		filepath.Join(base, "..", clientDirName),
	} {
		info, err := os.Stat(candidate)
		if err != nil || !info.IsDir() {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		return abs, true
	}
	return "", false
}
