package services

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gobwas/glob"
)

const DefaultBibPattern = "**.bib"

// FileCollector expands command line arguments into .bib file paths. Files are
// taken as given; directories are walked and their entries matched against
// the patterns, relative to the directory, with '/' as separator.
type FileCollector struct {
	patterns []glob.Glob
}

func NewFileCollector(patterns []string) (*FileCollector, error) {
	if len(patterns) == 0 {
		patterns = []string{DefaultBibPattern}
	}

	fc := &FileCollector{}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid pattern '%s': %w", pattern, err)
		}
		fc.patterns = append(fc.patterns, g)
	}
	return fc, nil
}

func (fc *FileCollector) matches(rel string) bool {
	rel = filepath.ToSlash(rel)
	for _, g := range fc.patterns {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// Collect returns the files named by args in argument order, directories
// expanded in lexical order. A path is returned at most once.
func (fc *FileCollector) Collect(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		clean := filepath.Clean(p)
		if !seen[clean] {
			seen[clean] = true
			paths = append(paths, clean)
		}
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot read %s: %w", arg, err)
		}
		if !info.IsDir() {
			add(arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(arg, path)
			if err != nil {
				return err
			}
			if fc.matches(rel) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", arg, err)
		}
	}

	if len(paths) == 0 {
		return nil, ErrNoInput
	}
	return paths, nil
}
