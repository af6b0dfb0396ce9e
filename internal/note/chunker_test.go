package note

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func testNote(title, body string) Note {
	return Note{
		SourceType: SourceMarkdown,
		SourceID:   "test.md",
		Title:      title,
		Body:       body,
	}
}

func TestChunk_ShortNote(t *testing.T) {
	n := testNote("Groceries", "Buy milk and eggs.")
	chunks := NewChunker(512).Chunk(n)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Ordinal != 0 {
		t.Errorf("ordinal = %d, want 0", c.Ordinal)
	}
	if c.ParentID != "markdown:test.md" {
		t.Errorf("parent = %q, want markdown:test.md", c.ParentID)
	}
	want := "[Note: Groceries]\n\nBuy milk and eggs."
	if c.Text != want {
		t.Errorf("text = %q, want %q", c.Text, want)
	}
	if n.Body[c.Start:c.End] != n.Body {
		t.Errorf("span [%d:%d] does not cover the full body", c.Start, c.End)
	}
}

func TestChunk_EmptyBody(t *testing.T) {
	for _, body := range []string{"", "   ", "\n\n\t\n"} {
		if chunks := NewChunker(512).Chunk(testNote("Empty", body)); chunks != nil {
			t.Errorf("body %q: expected nil, got %d chunks", body, len(chunks))
		}
	}
}

func TestChunk_PacksSections(t *testing.T) {
	// Four 5-word paragraphs with a 13-token budget (10 words): two
	// paragraphs fit together, three do not.
	paras := []string{
		"one two three four five",
		"six seven eight nine ten",
		"alpha beta gamma delta epsilon",
		"zeta eta theta iota kappa",
	}
	n := testNote("Long", strings.Join(paras, "\n\n"))
	chunks := NewChunker(13).Chunk(n)

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d: %#v", len(chunks), chunks)
	}
	if got := n.Body[chunks[0].Start:chunks[0].End]; got != paras[0]+"\n\n"+paras[1] {
		t.Errorf("chunk 0 body = %q", got)
	}
	if got := n.Body[chunks[1].Start:chunks[1].End]; got != paras[2]+"\n\n"+paras[3] {
		t.Errorf("chunk 1 body = %q", got)
	}
}

func TestChunk_SplitsBeforeHeading(t *testing.T) {
	body := "alpha beta gamma delta epsilon zeta eta theta\n" +
		"# Rest\n" +
		"one two three four five six seven eight"
	chunks := NewChunker(13).Chunk(testNote("Doc", body))

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if got := body[chunks[1].Start:chunks[1].End]; !strings.HasPrefix(got, "# Rest") {
		t.Errorf("second chunk should start at the heading, got %q", got)
	}
}

func TestChunk_SentenceFallback(t *testing.T) {
	// One section over budget: falls back to sentence boundaries, packing
	// two 4-word sentences per 13-token budget.
	s1 := "One two three four."
	s2 := "Five six seven eight!"
	s3 := "Nine ten eleven twelve?"
	body := s1 + " " + s2 + " " + s3
	chunks := NewChunker(13).Chunk(testNote("Sentences", body))

	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if got := body[chunks[0].Start:chunks[0].End]; got != s1+" "+s2 {
		t.Errorf("chunk 0 body = %q", got)
	}
	if got := body[chunks[1].Start:chunks[1].End]; got != s3 {
		t.Errorf("chunk 1 body = %q", got)
	}
}

func TestChunk_HardSplitOversizedSentence(t *testing.T) {
	words := make([]string, 25)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	body := strings.Join(words, " ")
	budget := 13 // 10 words
	chunks := NewChunker(budget).Chunk(testNote("Wall", body))

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	var got []string
	for _, c := range chunks {
		piece := body[c.Start:c.End]
		if EstimateTokens(piece) > budget {
			t.Errorf("chunk %d over budget: %d tokens", c.Ordinal, EstimateTokens(piece))
		}
		got = append(got, strings.Fields(piece)...)
	}
	if !reflect.DeepEqual(got, words) {
		t.Errorf("words lost or reordered: %v", got)
	}
}

func TestChunk_Invariants(t *testing.T) {
	body := "# Plans\nfinish the garden fence this weekend. " +
		"Call the lumber yard about cedar boards and pricing.\n\n" +
		"The greenhouse needs new glazing before the first frost arrives. " +
		"Order panels early because delivery takes three weeks or more.\n\n" +
		"# Budget\nSet aside four hundred for materials and tools. " +
		"Track every receipt in the spreadsheet as purchases happen."
	n := testNote("Garden", body)
	chunks := NewChunker(20).Chunk(n)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	header := "[Note: Garden]\n\n"
	for i, c := range chunks {
		if c.Ordinal != i {
			t.Errorf("chunk %d: ordinal = %d", i, c.Ordinal)
		}
		if c.Start < 0 || c.End > len(body) || c.Start >= c.End {
			t.Errorf("chunk %d: bad span [%d:%d]", i, c.Start, c.End)
		}
		if c.Text != header+body[c.Start:c.End] {
			t.Errorf("chunk %d: text does not match header + body span", i)
		}
		if c.ParentID != n.ParentID() {
			t.Errorf("chunk %d: parent = %q", i, c.ParentID)
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	n := testNote("Repeat", strings.Repeat("steady words flowing onward. ", 40))
	a := NewChunker(30).Chunk(n)
	b := NewChunker(30).Chunk(n)
	if !reflect.DeepEqual(a, b) {
		t.Error("chunking the same note twice produced different results")
	}
}

func TestNewChunker_DefaultBudget(t *testing.T) {
	if c := NewChunker(0); c.Budget != DefaultChunkBudget {
		t.Errorf("budget = %d, want %d", c.Budget, DefaultChunkBudget)
	}
	if c := NewChunker(-5); c.Budget != DefaultChunkBudget {
		t.Errorf("budget = %d, want %d", c.Budget, DefaultChunkBudget)
	}
}
