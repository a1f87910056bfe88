package pipeline

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Supported media file extensions (lowercase, with leading dot).
var mediaExtensions = map[string]bool{
	".mov":  true,
	".mp4":  true,
	".m4v":  true,
	".mxf":  true,
	".mkv":  true,
	".avi":  true,
	".dv":   true,
	".mts":  true,
	".m2ts": true,
	".ts":   true,
	".mpg":  true,
	".mpeg": true,
	".webm": true,
	".wmv":  true,
}

// IsMediaFile reports whether path has a supported media extension.
func IsMediaFile(path string) bool {
	return mediaExtensions[strings.ToLower(filepath.Ext(path))]
}

// Discover walks inputDir, collects files with media extensions, prunes
// directories named "extras" (case-insensitive) and hidden directories,
// and returns the paths sorted lexicographically for deterministic
// processing order.
func Discover(inputDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(inputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != inputDir && (strings.EqualFold(d.Name(), "extras") || strings.HasPrefix(d.Name(), ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if IsMediaFile(path) && !strings.HasPrefix(d.Name(), ".") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ExpandSources turns CLI arguments into an ordered, de-duplicated list of
// absolute source paths. Files are taken as given; directories are walked
// with Discover. Missing paths are an error.
func ExpandSources(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) error {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
		return nil
	}
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", arg, err)
		}
		if !fi.IsDir() {
			if err := add(arg); err != nil {
				return nil, err
			}
			continue
		}
		found, err := Discover(arg)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", arg, err)
		}
		for _, f := range found {
			if err := add(f); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
