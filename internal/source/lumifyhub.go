package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/note"
)

// LumifySource reads LumifyHub export files: .json files in a flat export
// directory, each holding a JSON array of exported notes.
type LumifySource struct {
	dir string
}

// NewLumify returns a LumifyHub source reading exports from dir. An empty
// dir leaves the source unconfigured.
func NewLumify(dir string) *LumifySource {
	return &LumifySource{dir: dir}
}

func (s *LumifySource) Type() string { return note.SourceLumify }

func (s *LumifySource) Available() error {
	if s.dir == "" {
		return apperrors.NewSourceUnavailable(s.Type(), errors.New("lumifyhub export directory not configured"))
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

// lumifyNote is the export file row shape.
type lumifyNote struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	UpdatedAt string `json:"updated_at"`
}

// List reads every export file in name order. A malformed file aborts the
// listing so a truncated export is never half-synced.
func (s *LumifySource) List(ctx context.Context, limit int) ([]note.Note, error) {
	if err := s.Available(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperrors.NewSourceUnavailable(s.Type(), err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	var notes []note.Note
	for _, name := range files {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if limit > 0 && len(notes) >= limit {
			break
		}

		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.NewSourceUnavailable(s.Type(), fmt.Errorf("read %s: %w", name, err))
		}

		var rows []lumifyNote
		if err := json.Unmarshal(data, &rows); err != nil {
			return nil, apperrors.NewSourceUnavailable(s.Type(), fmt.Errorf("malformed export file %s: %w", name, err))
		}

		for _, row := range rows {
			if limit > 0 && len(notes) >= limit {
				break
			}
			if row.ID == "" {
				return nil, apperrors.NewSourceUnavailable(s.Type(), fmt.Errorf("malformed export file %s: note missing id", name))
			}
			modified, err := parseLumifyTime(row.UpdatedAt)
			if err != nil {
				return nil, apperrors.NewSourceUnavailable(s.Type(), fmt.Errorf("malformed export file %s: %w", name, err))
			}
			notes = append(notes, note.Normalize(note.Note{
				SourceType:   note.SourceLumify,
				SourceID:     "lh_" + row.ID,
				Title:        row.Title,
				Body:         row.Body,
				LastModified: modified,
			}))
		}
	}

	return notes, nil
}

// parseLumifyTime accepts RFC 3339 or a zoneless local timestamp; exports
// from older LumifyHub versions omit the zone.
func parseLumifyTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad updated_at %q", s)
	}
	return t, nil
}
