// Package loader reads source documents from a directory tree, applying
// glob, suffix, and gitignore-style exclusion filters.
package loader

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	gitignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"

	"github.com/ChamsBouzaiene/semdex/internal/document"
	"github.com/ChamsBouzaiene/semdex/internal/splitter"
)

// Loader reads documents from a directory. Configuration is fixed at
// construction; a Loader can be reused across runs.
type Loader struct {
	root         string
	glob         string
	suffixes     []string
	excludeRules gitignore.IgnoreParser
	logger       *zap.Logger
}

// New creates a loader rooted at root. glob matches slash paths relative
// to root ("**/*" matches everything). suffixes restricts files by
// extension; an empty list allows all. exclude patterns use gitignore
// syntax and are applied after the glob.
func New(root, glob string, suffixes, exclude []string, logger *zap.Logger) (*Loader, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve document root: %w", err)
	}
	if info, err := os.Stat(abs); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("document root is not a valid directory: %s", abs)
	}

	if glob == "" {
		glob = "**/*"
	}

	return &Loader{
		root:         abs,
		glob:         glob,
		suffixes:     suffixes,
		excludeRules: gitignore.CompileIgnoreLines(exclude...),
		logger:       logger,
	}, nil
}

// Root returns the loader's resolved root directory.
func (l *Loader) Root() string {
	return l.root
}

// Load walks the root and returns one Document per matching readable
// UTF-8 file, in stable path order. Files that fail to read or are not
// valid UTF-8 are skipped with a warning; only a failed walk of the root
// itself is fatal.
func (l *Loader) Load(ctx context.Context) ([]document.Document, error) {
	var paths []string

	err := filepath.WalkDir(l.root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			l.logger.Warn("skipping unreadable path", zap.String("path", p), zap.Error(err))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && l.excludeRules.MatchesPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if !l.matches(rel) {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", l.root, err)
	}

	sort.Strings(paths)

	docs := make([]document.Document, 0, len(paths))
	for _, rel := range paths {
		content, err := os.ReadFile(filepath.Join(l.root, rel))
		if err != nil {
			l.logger.Warn("skipping unreadable file", zap.String("path", rel), zap.Error(err))
			continue
		}
		if !utf8.Valid(content) {
			l.logger.Warn("skipping non-UTF-8 file", zap.String("path", rel))
			continue
		}

		docs = append(docs, document.Document{
			Content: string(content),
			Metadata: map[string]any{
				document.MetaSource:   rel,
				document.MetaLanguage: string(splitter.DetectLanguage(rel)),
			},
		})
	}

	l.logger.Info("loaded documents", zap.Int("count", len(docs)), zap.String("root", l.root))
	return docs, nil
}

// matches applies the glob, suffix, and exclusion filters to a slash
// path relative to the root.
func (l *Loader) matches(rel string) bool {
	if !matchGlob(l.glob, rel) {
		return false
	}

	if len(l.suffixes) > 0 {
		ext := path.Ext(rel)
		ok := false
		for _, suffix := range l.suffixes {
			if strings.EqualFold(ext, suffix) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	return !l.excludeRules.MatchesPath(rel)
}

// matchGlob matches a slash path against a glob pattern where "**"
// crosses directory boundaries (path.Match alone stops at separators).
func matchGlob(pattern, rel string) bool {
	if pattern == "**/*" || pattern == "**" {
		return true
	}
	if strings.HasPrefix(pattern, "**/") {
		rest := strings.TrimPrefix(pattern, "**/")
		if ok, _ := path.Match(rest, path.Base(rel)); ok {
			return true
		}
		if ok, _ := path.Match(rest, rel); ok {
			return true
		}
		return false
	}
	ok, _ := path.Match(pattern, rel)
	return ok
}
