package ops

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/dumbledore/internal/db"
	apperrors "github.com/hpungsan/dumbledore/internal/errors"
)

// ExportInput contains parameters for the export operation.
type ExportInput struct {
	// Path is the destination file. Empty writes a timestamped file under
	// the data directory's exports/.
	Path string
}

// ExportOutput reports where the export landed and what it holds.
type ExportOutput struct {
	Path          string `json:"path"`
	Notes         int    `json:"notes"`
	Conversations int    `json:"conversations"`
	ExportedAt    int64  `json:"exported_at"`
}

// ExportDoc is the versioned document Export writes.
type ExportDoc struct {
	DumbledoreExport bool                 `json:"_dumbledore_export"`
	SchemaVersion    string               `json:"schema_version"`
	ExportedAt       int64                `json:"exported_at"`
	Notes            []db.SyncedNote      `json:"notes"`
	Conversations    []ExportConversation `json:"conversations"`
}

// ExportConversation is one conversation with its messages.
type ExportConversation struct {
	db.Conversation
	Messages []db.Message `json:"messages"`
}

// Export writes the note inventory and every conversation to a JSON file.
// The document is written to a temp file and renamed into place so a failed
// export never clobbers an earlier one.
func Export(ctx context.Context, env *Env, input ExportInput) (*ExportOutput, error) {
	now := time.Now()

	exportPath := input.Path
	if exportPath == "" {
		name := fmt.Sprintf("dumbledore-%s.json", now.Format("2006-01-02T150405"))
		exportPath = filepath.Join(env.BaseDir, "exports", name)
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("create export directory: %w", err))
	}

	doc, err := buildExportDoc(env, now.Unix())
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("create export file: %w", err))
	}

	// Remove the temp file on failure; the previous export stays intact.
	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(append(data, '\n')); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if err := file.Sync(); err != nil {
		return nil, apperrors.NewInternal(err)
	}

	// Close before the rename; Windows refuses to rename an open file.
	if err := file.Close(); err != nil {
		return nil, apperrors.NewInternal(fmt.Errorf("close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination.
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, apperrors.NewInvalidRequest("cannot export to a symlink")
	}

	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, apperrors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, apperrors.NewInternal(fmt.Errorf("finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:          exportPath,
		Notes:         len(doc.Notes),
		Conversations: len(doc.Conversations),
		ExportedAt:    doc.ExportedAt,
	}, nil
}

func buildExportDoc(env *Env, exportedAt int64) (*ExportDoc, error) {
	notes, err := db.ListSyncedNotes(env.DB)
	if err != nil {
		return nil, err
	}
	convs, err := db.ListConversations(env.DB, 0)
	if err != nil {
		return nil, err
	}

	doc := &ExportDoc{
		DumbledoreExport: true,
		SchemaVersion:    "1.0",
		ExportedAt:       exportedAt,
		Notes:            notes,
	}
	for _, conv := range convs {
		msgs, err := db.GetMessages(env.DB, conv.ID)
		if err != nil {
			return nil, err
		}
		doc.Conversations = append(doc.Conversations, ExportConversation{
			Conversation: conv,
			Messages:     msgs,
		})
	}
	return doc, nil
}
