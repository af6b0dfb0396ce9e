package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/dumbledore/internal/db"
	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/note"
	"github.com/hpungsan/dumbledore/internal/ops"
	"github.com/hpungsan/dumbledore/internal/vector"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	env      *ops.Env
	renderer *Renderer
}

// HandleNotes handles GET /notes. Synced notes grouped by source.
func (h *Handlers) HandleNotes(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Notes(r.Context(), h.env, ops.NotesInput{Limit: ops.MaxNotesLimit})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "notes", NotesPageData{
		PageData: PageData{Title: "Notes", Version: h.renderer.version, Nav: "notes"},
		Groups:   groupBySource(result.Notes),
		Total:    result.Total,
	})
}

// groupBySource buckets notes by source type. Sync sources come first in
// their fixed order, then any derived sources in order of appearance.
func groupBySource(notes []db.SyncedNote) []NoteGroup {
	order := make([]string, len(note.SyncSourceTypes))
	copy(order, note.SyncSourceTypes)

	byType := make(map[string][]db.SyncedNote)
	for _, n := range notes {
		if _, seen := byType[n.SourceType]; !seen && !containsString(order, n.SourceType) {
			order = append(order, n.SourceType)
		}
		byType[n.SourceType] = append(byType[n.SourceType], n)
	}

	var groups []NoteGroup
	for _, t := range order {
		if len(byType[t]) == 0 {
			continue
		}
		groups = append(groups, NoteGroup{Source: t, Notes: byType[t]})
	}
	return groups
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// HandleNoteDetail handles GET /notes/{title}. Reassembles the note's
// chunks and renders the body as markdown.
func (h *Handlers) HandleNoteDetail(w http.ResponseWriter, r *http.Request) {
	title := r.PathValue("title")
	if title == "" {
		h.renderer.renderError(w, r, apperrors.NewInvalidRequest("note title is required"))
		return
	}

	chunks, err := h.env.Store.ChunksByTitle(r.Context(), title)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	if len(chunks) == 0 {
		h.renderer.renderError(w, r, apperrors.NewNotFound(fmt.Sprintf("note %q", title)))
		return
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData:     PageData{Title: title, Version: h.renderer.version, Nav: "notes"},
		NoteTitle:    title,
		SourceType:   chunks[0].SourceType,
		ChunkCount:   len(chunks),
		RenderedHTML: renderMarkdown(reassembleNote(title, chunks)),
	})
}

// reassembleNote joins chunk texts back into one document, dropping the
// per-chunk retrieval headers.
func reassembleNote(title string, chunks []vector.Result) string {
	header := fmt.Sprintf("[Note: %s]\n\n", title)
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = strings.TrimPrefix(c.Text, header)
	}
	return strings.Join(parts, "\n\n")
}

// HandleSearch handles GET /search. Renders the empty form until a
// query is submitted.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	data := SearchPageData{
		PageData: PageData{Title: "Search", Version: h.renderer.version, Nav: "search"},
		Query:    query,
		Source:   r.URL.Query().Get("source"),
		HasQuery: query != "",
	}

	if !data.HasQuery {
		h.renderer.renderPage(w, r, "search", data)
		return
	}

	result, err := ops.Search(r.Context(), h.env, ops.SearchInput{
		Query:  query,
		TopK:   parseIntParam(r, "top", 0),
		Source: data.Source,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	data.Results = result.Results
	h.renderer.renderPage(w, r, "search", data)
}

// HandleConversations handles GET /conversations.
func (h *Handlers) HandleConversations(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Conversations(r.Context(), h.env, ops.ConversationsInput{
		Limit: parseIntParam(r, "limit", 0),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "conversations", ConversationsPageData{
		PageData:      PageData{Title: "Conversations", Version: h.renderer.version, Nav: "conversations"},
		Conversations: result.Conversations,
		Total:         result.Total,
	})
}

// HandleTranscript handles GET /conversations/{id}.
func (h *Handlers) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Transcript(r.Context(), h.env, ops.TranscriptInput{
		ConversationID: r.PathValue("id"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	messages := make([]TranscriptMessage, len(result.Messages))
	for i, m := range result.Messages {
		messages[i] = TranscriptMessage{
			Role:         m.Role,
			RenderedHTML: renderMarkdown(m.Content),
			CreatedAt:    m.CreatedAt,
		}
	}

	h.renderer.renderPage(w, r, "transcript", TranscriptPageData{
		PageData:     PageData{Title: result.Conversation.Topic, Version: h.renderer.version, Nav: "conversations"},
		Conversation: result.Conversation,
		Messages:     messages,
	})
}

// HandleStats handles GET /stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Stats(r.Context(), h.env)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "stats", StatsPageData{
		PageData: PageData{Title: "Stats", Version: h.renderer.version, Nav: "stats"},
		Stats:    result,
	})
}

// parseIntParam parses an integer query parameter, returning defaultVal
// when absent or malformed.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
