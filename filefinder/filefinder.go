// Package filefinder discovers Gerber files in a directory tree.
package filefinder

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

type Options struct {
	Recursive     bool
	IncludeHidden bool
	// Patterns are matched case-insensitively against the base name.
	Patterns []string
}

// CheckPatterns reports the first malformed pattern.
func CheckPatterns(patterns []string) error {
	for _, p := range patterns {
		if _, err := filepath.Match(strings.ToLower(p), ""); err != nil {
			return fmt.Errorf("pattern %q: %w", p, err)
		}
	}
	return nil
}

func matches(name string, patterns []string) bool {
	name = strings.ToLower(name)
	for _, p := range patterns {
		if ok, _ := filepath.Match(strings.ToLower(p), name); ok {
			return true
		}
	}
	return false
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

// Find returns the sorted paths of the matching files under root. A root
// which is a regular file is returned as is, whatever its name.
func Find(fs afero.Fs, root string, opt Options) ([]string, error) {
	if err := CheckPatterns(opt.Patterns); err != nil {
		return nil, err
	}
	info, err := fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", root, err)
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	var found []string
	err = afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		name := info.Name()
		if info.IsDir() {
			if !opt.Recursive || (!opt.IncludeHidden && hidden(name)) {
				return filepath.SkipDir
			}
			return nil
		}
		if !opt.IncludeHidden && hidden(name) {
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if matches(name, opt.Patterns) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	sort.Strings(found)
	return found, nil
}
