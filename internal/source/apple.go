package source

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/note"
)

// AppleScript output separators. Notes are joined with noteSep and fields
// within a note with fieldSep; neither sequence occurs in normal note text.
const (
	fieldSep = "<<<FIELD>>>"
	noteSep  = "<<<NOTE>>>"
)

const (
	appleMetadataTimeout = 300 * time.Second
	appleFetchTimeout    = 120 * time.Second
	appleBatchSize       = 25
)

// appleMetadataScript lists id, title, and modification date for every
// note in one pass. Bulk property access is far faster than iterating
// notes one at a time.
const appleMetadataScript = `
tell application "Notes"
	set allIds to id of every note
	set allTitles to name of every note
	set allDates to modification date of every note

	set output to ""
	set noteCount to count of allIds

	repeat with i from 1 to noteCount
		set modDate to item i of allDates
		set modDateStr to (year of modDate as string) & "-" & text -2 thru -1 of ("0" & ((month of modDate) as integer)) & "-" & text -2 thru -1 of ("0" & (day of modDate)) & "T" & text -2 thru -1 of ("0" & (hours of modDate)) & ":" & text -2 thru -1 of ("0" & (minutes of modDate)) & ":" & text -2 thru -1 of ("0" & (seconds of modDate))

		set output to output & (item i of allIds) & "<<<FIELD>>>" & (item i of allTitles) & "<<<FIELD>>>" & modDateStr & "<<<NOTE>>>"
	end repeat

	return output
end tell
`

// appleFetchScript fetches full bodies for a batch of note ids. The %s
// placeholder receives an "id of theNote is ..." disjunction. Notes that
// error mid-read are skipped rather than aborting the batch.
const appleFetchScript = `
tell application "Notes"
	set output to ""
	repeat with theNote in notes
		try
			if %s then
				set noteId to id of theNote
				set noteTitle to name of theNote
				set noteBody to plaintext of theNote

				set modDate to modification date of theNote
				set modDateStr to (year of modDate as string) & "-" & text -2 thru -1 of ("0" & ((month of modDate) as integer)) & "-" & text -2 thru -1 of ("0" & (day of modDate)) & "T" & text -2 thru -1 of ("0" & (hours of modDate)) & ":" & text -2 thru -1 of ("0" & (minutes of modDate)) & ":" & text -2 thru -1 of ("0" & (seconds of modDate))

				set output to output & noteId & "<<<FIELD>>>" & noteTitle & "<<<FIELD>>>" & noteBody & "<<<FIELD>>>" & modDateStr & "<<<NOTE>>>"
			end if
		on error
		end try
	end repeat

	return output
end tell
`

// appleDateLayout matches the date string the scripts assemble. Apple
// Notes reports local time with no zone.
const appleDateLayout = "2006-01-02T15:04:05"

// AppleSource reads Apple Notes through osascript. macOS only.
type AppleSource struct {
	bin       string
	batchSize int
}

// NewApple returns an Apple Notes source using the osascript binary on PATH.
func NewApple() *AppleSource {
	return &AppleSource{bin: "osascript", batchSize: appleBatchSize}
}

func (s *AppleSource) Type() string { return note.SourceApple }

// Available checks that we are on macOS and osascript is present.
func (s *AppleSource) Available() error {
	if runtime.GOOS != "darwin" {
		return apperrors.NewSourceUnavailable(s.Type(), errors.New("Apple Notes requires macOS"))
	}
	if _, err := exec.LookPath(s.bin); err != nil {
		return apperrors.NewSourceUnavailable(s.Type(), fmt.Errorf("osascript not found: %w", err))
	}
	return nil
}

// List fetches notes in two passes: a cheap bulk metadata pass that yields
// ids (and honors limit), then full-body fetches in batches of 25 ids to
// stay under AppleScript evaluation limits.
func (s *AppleSource) List(ctx context.Context, limit int) ([]note.Note, error) {
	out, err := s.run(ctx, appleMetadataScript, appleMetadataTimeout)
	if err != nil {
		return nil, err
	}

	meta := parseAppleMetadata(out)
	if limit > 0 && len(meta) > limit {
		meta = meta[:limit]
	}
	if len(meta) == 0 {
		return nil, nil
	}

	ids := make([]string, len(meta))
	for i, m := range meta {
		ids[i] = m.id
	}

	var notes []note.Note
	for start := 0; start < len(ids); start += s.batchSize {
		end := start + s.batchSize
		if end > len(ids) {
			end = len(ids)
		}

		script := fmt.Sprintf(appleFetchScript, appleIDConditions(ids[start:end]))
		out, err := s.run(ctx, script, appleFetchTimeout)
		if err != nil {
			return nil, err
		}
		notes = append(notes, parseAppleNotes(out)...)
	}

	return notes, nil
}

func (s *AppleSource) run(ctx context.Context, script string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.bin, "-e", script)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			err = fmt.Errorf("osascript: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", apperrors.NewSourceUnavailable(s.Type(), err)
	}
	return strings.TrimSpace(string(out)), nil
}

type appleMeta struct {
	id       string
	title    string
	modified time.Time
}

// parseAppleMetadata splits the metadata script output into id/title/date
// triples. Malformed entries are dropped; a bad date leaves the zero time,
// which sync treats as always changed.
func parseAppleMetadata(out string) []appleMeta {
	var metas []appleMeta
	for _, entry := range strings.Split(out, noteSep) {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		parts := strings.Split(entry, fieldSep)
		if len(parts) < 3 {
			continue
		}
		metas = append(metas, appleMeta{
			id:       parts[0],
			title:    parts[1],
			modified: parseAppleDate(parts[2]),
		})
	}
	return metas
}

// parseAppleNotes splits the fetch script output into full notes.
func parseAppleNotes(out string) []note.Note {
	var notes []note.Note
	for _, entry := range strings.Split(out, noteSep) {
		if strings.TrimSpace(entry) == "" {
			continue
		}
		parts := strings.Split(entry, fieldSep)
		if len(parts) < 4 {
			continue
		}
		notes = append(notes, note.Normalize(note.Note{
			SourceType:   note.SourceApple,
			SourceID:     parts[0],
			Title:        parts[1],
			Body:         parts[2],
			LastModified: parseAppleDate(parts[3]),
		}))
	}
	return notes
}

func parseAppleDate(s string) time.Time {
	t, err := time.ParseInLocation(appleDateLayout, strings.TrimSpace(s), time.Local)
	if err != nil {
		return time.Time{}
	}
	return t
}

// appleIDConditions builds the id disjunction for the fetch script.
func appleIDConditions(ids []string) string {
	conds := make([]string, len(ids))
	for i, id := range ids {
		conds[i] = `id of theNote is "` + escapeAppleString(id) + `"`
	}
	return strings.Join(conds, " or ")
}

func escapeAppleString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
