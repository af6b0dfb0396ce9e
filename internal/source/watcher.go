package source

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/note"
)

// DefaultWatchDebounce is the quiet period after a file event before a
// re-sync fires. Editors write files in bursts; one flush covers them.
const DefaultWatchDebounce = 2 * time.Second

// Watcher monitors the file-backed source directories and reports which
// source types changed, coalescing event bursts. Apple Notes has no
// filesystem to watch and is not covered.
type Watcher struct {
	fw       *fsnotify.Watcher
	debounce time.Duration
	out      io.Writer

	markdownDir string
	lumifyDir   string
}

// NewWatcher watches the markdown vault (recursively) and the LumifyHub
// export directory. Empty dirs are skipped; at least one must be set.
// Diagnostics go to out.
func NewWatcher(markdownDir, lumifyDir string, debounce time.Duration, out io.Writer) (*Watcher, error) {
	if markdownDir == "" && lumifyDir == "" {
		return nil, apperrors.NewInvalidRequest("nothing to watch: no markdown vault or lumifyhub export directory configured")
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	if out == nil {
		out = io.Discard
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	w := &Watcher{
		fw:       fw,
		debounce: debounce,
		out:      out,
	}

	if markdownDir != "" {
		w.markdownDir = filepath.Clean(markdownDir)
		if err := w.addRecursive(w.markdownDir); err != nil {
			fw.Close()
			return nil, apperrors.NewSourceUnavailable(note.SourceMarkdown, err)
		}
	}
	if lumifyDir != "" {
		w.lumifyDir = filepath.Clean(lumifyDir)
		if err := fw.Add(w.lumifyDir); err != nil {
			fw.Close()
			return nil, apperrors.NewSourceUnavailable(note.SourceLumify, err)
		}
	}

	return w, nil
}

// Close stops watching. Run returns after Close.
func (w *Watcher) Close() error {
	return w.fw.Close()
}

// Run blocks delivering change notifications until ctx is done or the
// watcher is closed. onChange receives the source type whose directory
// changed, once per quiet period regardless of how many events arrived.
// onChange runs on Run's goroutine, so a slow re-sync delays the next
// flush instead of stacking concurrent ones.
func (w *Watcher) Run(ctx context.Context, onChange func(sourceType string)) error {
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	pending := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if st := w.classify(ev); st != "" {
				pending[st] = true
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(w.out, "watch error: %v\n", err)

		case <-timer.C:
			for _, st := range sortedKeys(pending) {
				onChange(st)
			}
			pending = make(map[string]bool)
		}
	}
}

// classify maps an event to the source type it affects, or "" for noise.
// A directory created inside the vault is added to the watch so files
// written there later are seen.
func (w *Watcher) classify(ev fsnotify.Event) string {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return ""
	}

	path := filepath.Clean(ev.Name)
	st := w.sourceOf(path)
	if st == "" {
		return ""
	}

	if st == note.SourceMarkdown && ev.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			_ = w.fw.Add(path)
			return st
		}
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case st == note.SourceMarkdown && ext == ".md":
		return st
	case st == note.SourceLumify && ext == ".json":
		return st
	}
	return ""
}

func (w *Watcher) sourceOf(path string) string {
	if w.markdownDir != "" && underDir(path, w.markdownDir) {
		return note.SourceMarkdown
	}
	if w.lumifyDir != "" && underDir(path, w.lumifyDir) {
		return note.SourceLumify
	}
	return ""
}

func underDir(path, dir string) bool {
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fw.Add(path)
		}
		return nil
	})
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
