package indexer

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hyperjump/hanashi/internal/extract"
	"github.com/hyperjump/hanashi/internal/fileid"
	"github.com/hyperjump/hanashi/internal/models"
)

// ResolvePattern returns the regular files named by a document location pattern,
// sorted and de-duplicated. The pattern may be
//   - a file path,
//   - a directory, meaning every file below it,
//   - a glob understood by filepath.Match ("docs/*.md"),
//   - a recursive glob "root/**/name-glob" ("docs/**/*.pdf").
//
// A leading "file:" is ignored. When allowedExts is non-empty only files with one
// of those extensions are returned.
func ResolvePattern(pattern string, allowedExts []string) ([]string, error) {
	pattern = strings.TrimPrefix(strings.TrimSpace(pattern), "file:")
	if pattern == "" {
		return nil, fmt.Errorf("empty document location pattern")
	}
	var candidates []string
	if root, rest, ok := strings.Cut(pattern, "**"); ok {
		root = filepath.Clean(root)
		nameGlob := strings.TrimLeft(rest, `/\`)
		if nameGlob == "" {
			nameGlob = "*"
		}
		if _, err := filepath.Match(nameGlob, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		files, err := walkFiles(root)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if ok, _ := filepath.Match(nameGlob, filepath.Base(f)); ok {
				candidates = append(candidates, f)
			}
		}
	} else if info, err := os.Stat(pattern); err == nil && info.IsDir() {
		files, err := walkFiles(pattern)
		if err != nil {
			return nil, err
		}
		candidates = files
	} else {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		candidates = matches
	}

	seen := map[string]bool{}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil || seen[abs] {
			continue
		}
		if len(allowedExts) > 0 && !extensionAllowed(filepath.Ext(abs), allowedExts) {
			continue
		}
		info, err := os.Stat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	sort.Strings(out)
	return out, nil
}

func walkFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}

// ReadFile extracts the file at path into a Document whose id is derived from
// the absolute path. Source metadata records the file name, path, mtime and size.
func ReadFile(ex *extract.Extractor, path string) (*models.Document, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	if ex == nil {
		ex = extract.NewExtractor()
	}
	text, err := ex.Extract(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", absPath, err)
	}
	return &models.Document{
		ID:      fileid.ForPath(absPath),
		Title:   filepath.Base(absPath),
		Content: text,
		Metadata: map[string]interface{}{
			models.MetaSource:     filepath.Base(absPath),
			models.MetaSourcePath: absPath,
			// Stored as strings: UnixNano does not survive a JSON float64 round trip.
			models.MetaModTime: strconv.FormatInt(info.ModTime().UnixNano(), 10),
			models.MetaSize:    strconv.FormatInt(info.Size(), 10),
		},
	}, nil
}

// Read resolves pattern and reads every matching file. Files that fail to
// extract are reported through onError and skipped; a nil onError aborts instead.
func Read(ex *extract.Extractor, pattern string, allowedExts []string, onError func(path string, err error)) ([]*models.Document, error) {
	paths, err := ResolvePattern(pattern, allowedExts)
	if err != nil {
		return nil, err
	}
	docs := make([]*models.Document, 0, len(paths))
	for _, p := range paths {
		doc, err := ReadFile(ex, p)
		if err != nil {
			if onError == nil {
				return nil, err
			}
			onError(p, err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func metadataInt64(m map[string]interface{}, key string) int64 {
	switch n := m[key].(type) {
	case string:
		x, _ := strconv.ParseInt(n, 10, 64)
		return x
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
