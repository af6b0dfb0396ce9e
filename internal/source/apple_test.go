package source

import (
	"runtime"
	"strings"
	"testing"
	"time"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/note"
)

func TestParseAppleMetadata(t *testing.T) {
	out := "x-coredata://AAA/p1<<<FIELD>>>Groceries<<<FIELD>>>2024-03-01T09:30:00<<<NOTE>>>" +
		"x-coredata://AAA/p2<<<FIELD>>>Ideas<<<FIELD>>>2024-03-02T18:05:09<<<NOTE>>>"

	metas := parseAppleMetadata(out)
	if len(metas) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(metas))
	}
	if metas[0].id != "x-coredata://AAA/p1" || metas[0].title != "Groceries" {
		t.Errorf("first entry = %+v", metas[0])
	}

	want := time.Date(2024, 3, 1, 9, 30, 0, 0, time.Local)
	if !metas[0].modified.Equal(want) {
		t.Errorf("modified = %v, want %v", metas[0].modified, want)
	}
}

func TestParseAppleMetadata_SkipsMalformed(t *testing.T) {
	out := "only-an-id<<<NOTE>>>" +
		"x-coredata://AAA/p1<<<FIELD>>>Good<<<FIELD>>>2024-01-01T00:00:00<<<NOTE>>>" +
		"   "

	metas := parseAppleMetadata(out)
	if len(metas) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(metas))
	}
	if metas[0].title != "Good" {
		t.Errorf("title = %q", metas[0].title)
	}
}

func TestParseAppleMetadata_BadDateLeavesZeroTime(t *testing.T) {
	out := "id1<<<FIELD>>>Title<<<FIELD>>>missing value<<<NOTE>>>"

	metas := parseAppleMetadata(out)
	if len(metas) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(metas))
	}
	if !metas[0].modified.IsZero() {
		t.Errorf("expected zero time, got %v", metas[0].modified)
	}
}

func TestParseAppleNotes(t *testing.T) {
	out := "id1<<<FIELD>>>  Groceries <<<FIELD>>>Buy milk.\r\nBuy eggs.<<<FIELD>>>2024-03-01T09:30:00<<<NOTE>>>"

	notes := parseAppleNotes(out)
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}

	n := notes[0]
	if n.SourceType != note.SourceApple || n.SourceID != "id1" {
		t.Errorf("identity = %s:%s", n.SourceType, n.SourceID)
	}
	// Normalized: trimmed title, unified line endings.
	if n.Title != "Groceries" {
		t.Errorf("title = %q", n.Title)
	}
	if n.Body != "Buy milk.\nBuy eggs." {
		t.Errorf("body = %q", n.Body)
	}
}

func TestParseAppleNotes_EmptyOutput(t *testing.T) {
	if notes := parseAppleNotes(""); len(notes) != 0 {
		t.Errorf("expected no notes, got %d", len(notes))
	}
}

func TestAppleIDConditions(t *testing.T) {
	got := appleIDConditions([]string{"id1", `id"2`})
	want := `id of theNote is "id1" or id of theNote is "id\"2"`
	if got != want {
		t.Errorf("conditions = %q, want %q", got, want)
	}
}

func TestAppleAvailable_NonDarwin(t *testing.T) {
	if runtime.GOOS == "darwin" {
		t.Skip("requires a non-macOS host")
	}

	err := NewApple().Available()
	if !apperrors.Is(err, apperrors.ErrSourceUnavailable) {
		t.Fatalf("expected SOURCE_UNAVAILABLE, got %v", err)
	}
	if !strings.Contains(err.Error(), "macOS") {
		t.Errorf("error should mention macOS: %v", err)
	}
}

func TestAppleType(t *testing.T) {
	if got := NewApple().Type(); got != note.SourceApple {
		t.Errorf("Type() = %q", got)
	}
}
