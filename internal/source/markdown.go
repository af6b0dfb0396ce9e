package source

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/note"
)

// MarkdownSource reads .md files from a local vault directory, recursively.
type MarkdownSource struct {
	dir string
}

// NewMarkdown returns a markdown source rooted at dir. An empty dir
// leaves the source unconfigured (Available reports unavailable).
func NewMarkdown(dir string) *MarkdownSource {
	return &MarkdownSource{dir: dir}
}

func (s *MarkdownSource) Type() string { return note.SourceMarkdown }

func (s *MarkdownSource) Available() error {
	if s.dir == "" {
		return apperrors.NewSourceUnavailable(s.Type(), errors.New("markdown vault not configured"))
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return apperrors.NewSourceUnavailable(s.Type(), err)
	}
	if !info.IsDir() {
		return apperrors.NewSourceUnavailable(s.Type(), fmt.Errorf("%s is not a directory", s.dir))
	}
	return nil
}

// List walks the vault and returns one note per .md file, in path order.
// SourceIDs hash the vault-relative path, so moving the vault does not
// resync every file. Unreadable files are skipped.
func (s *MarkdownSource) List(ctx context.Context, limit int) ([]note.Note, error) {
	if err := s.Available(); err != nil {
		return nil, err
	}

	var paths []string
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".md") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.NewSourceUnavailable(s.Type(), err)
	}
	sort.Strings(paths)

	var notes []note.Note
	for _, path := range paths {
		if limit > 0 && len(notes) >= limit {
			break
		}

		body, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			continue
		}

		notes = append(notes, note.Normalize(note.Note{
			SourceType:   note.SourceMarkdown,
			SourceID:     markdownID(rel),
			Title:        titleFromFilename(filepath.Base(path)),
			Body:         string(body),
			LastModified: info.ModTime(),
		}))
	}

	return notes, nil
}

// markdownID derives a stable id from the vault-relative path.
func markdownID(rel string) string {
	sum := md5.Sum([]byte(filepath.ToSlash(rel)))
	return "md_" + hex.EncodeToString(sum[:])[:12]
}

// titleFromFilename turns a filename like "meeting-notes-2499e585.md" into
// "Meeting Notes": strip the extension, drop a trailing 8-char hash suffix
// if present, then title-case the dash-separated words.
func titleFromFilename(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	if len(stem) > 9 && stem[len(stem)-9] == '-' && isAlnum(stem[len(stem)-8:]) {
		stem = stem[:len(stem)-9]
	}
	return titleCase(strings.ReplaceAll(stem, "-", " "))
}

func isAlnum(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
