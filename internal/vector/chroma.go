package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
)

// DefaultCollection is the Chroma collection holding the note index.
const DefaultCollection = "dumbledore_notes"

// ChromaStore keeps the index in a ChromaDB collection. Chroma enforces
// embedding dimension consistency on the server side.
type ChromaStore struct {
	client     chromago.Client
	collection chromago.Collection
	name       string
}

var _ Store = (*ChromaStore)(nil)

// NewChroma connects to a ChromaDB server and opens or creates the named
// collection.
func NewChroma(url, name string) (*ChromaStore, error) {
	if name == "" {
		name = DefaultCollection
	}
	client, err := chromago.NewHTTPClient(chromago.WithBaseURL(url))
	if err != nil {
		return nil, apperrors.NewStoreError(fmt.Errorf("create chroma client: %w", err))
	}
	collection, err := openCollection(client, name)
	if err != nil {
		client.Close()
		return nil, err
	}
	return &ChromaStore{client: client, collection: collection, name: name}, nil
}

func openCollection(client chromago.Client, name string) (chromago.Collection, error) {
	collection, err := client.GetOrCreateCollection(
		context.Background(),
		name,
		chromago.WithCollectionMetadataCreate(
			chromago.NewMetadata(
				chromago.NewStringAttribute("created_by", "dumbledore"),
			),
		),
	)
	if err != nil {
		return nil, apperrors.NewStoreError(fmt.Errorf("open collection %s: %w", name, err))
	}
	return collection, nil
}

// Upsert writes records one at a time so a partial failure reports the
// exact record that broke.
func (s *ChromaStore) Upsert(ctx context.Context, records []Record) error {
	now := time.Now().Unix()
	for _, r := range records {
		if len(r.Vector) == 0 {
			return apperrors.NewStoreError(fmt.Errorf("record %s has an empty vector", r.ID))
		}
		meta := chromago.NewDocumentMetadata(
			chromago.NewStringAttribute("note_id", r.ParentID),
			chromago.NewStringAttribute("note_title", r.Title),
			chromago.NewIntAttribute("chunk_index", int64(r.Ordinal)),
			chromago.NewStringAttribute("source_type", r.SourceType),
			chromago.NewIntAttribute("updated_at", now),
		)
		err := s.collection.Upsert(ctx,
			chromago.WithIDs(chromago.DocumentID(r.ID)),
			chromago.WithTexts(r.Text),
			chromago.WithEmbeddings(embeddings.NewEmbeddingFromFloat32(r.Vector)),
			chromago.WithMetadatas(meta),
		)
		if err != nil {
			return apperrors.NewStoreError(fmt.Errorf("upsert %s: %w", r.ID, err))
		}
	}
	return nil
}

// Query runs a similarity search and maps distances to scores as
// 1/(1+distance) so higher stays better across backends.
func (s *ChromaStore) Query(ctx context.Context, query []float32, k int, filter *Filter) ([]Result, error) {
	if len(query) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}

	emb := embeddings.NewEmbeddingFromFloat32(query)
	var res chromago.QueryResult
	var err error
	if where := chromaWhere(filter); where != nil {
		res, err = s.collection.Query(ctx,
			chromago.WithQueryEmbeddings(emb),
			chromago.WithNResults(k),
			chromago.WithWhereQuery(where),
		)
	} else {
		res, err = s.collection.Query(ctx,
			chromago.WithQueryEmbeddings(emb),
			chromago.WithNResults(k),
		)
	}
	if err != nil {
		return nil, apperrors.NewStoreError(fmt.Errorf("query collection: %w", err))
	}

	idGroups := res.GetIDGroups()
	if len(idGroups) == 0 {
		return nil, nil
	}
	docGroups := res.GetDocumentsGroups()
	metaGroups := res.GetMetadatasGroups()
	distGroups := res.GetDistancesGroups()

	results := make([]Result, 0, len(idGroups[0]))
	for i, id := range idGroups[0] {
		r := Result{}
		r.ID = string(id)
		if len(docGroups) > 0 && i < len(docGroups[0]) {
			r.Text = docGroups[0][i].ContentString()
		}
		if len(metaGroups) > 0 && i < len(metaGroups[0]) && metaGroups[0][i] != nil {
			m, err := decodeChromaMeta(metaGroups[0][i])
			if err != nil {
				return nil, apperrors.NewStoreError(fmt.Errorf("decode metadata for %s: %w", r.ID, err))
			}
			m.fill(&r.Record)
		}
		if len(distGroups) > 0 && i < len(distGroups[0]) {
			r.Score = 1 / (1 + float64(distGroups[0][i]))
		}
		results = append(results, r)
	}
	return results, nil
}

// Titles lists every record's metadata and returns the sorted distinct
// note titles.
func (s *ChromaStore) Titles(ctx context.Context) ([]string, error) {
	res, err := s.collection.Get(ctx)
	if err != nil {
		return nil, apperrors.NewStoreError(fmt.Errorf("list collection: %w", err))
	}

	seen := make(map[string]bool)
	for _, meta := range res.GetMetadatas() {
		if meta == nil {
			continue
		}
		m, err := decodeChromaMeta(meta)
		if err != nil {
			return nil, apperrors.NewStoreError(err)
		}
		if m.Title != "" {
			seen[m.Title] = true
		}
	}

	titles := make([]string, 0, len(seen))
	for t := range seen {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles, nil
}

// ChunksByTitle fetches records by note title metadata, ordered by
// ordinal.
func (s *ChromaStore) ChunksByTitle(ctx context.Context, title string) ([]Result, error) {
	res, err := s.collection.Get(ctx, chromago.WithWhereGet(chromago.EqString("note_title", title)))
	if err != nil {
		return nil, apperrors.NewStoreError(fmt.Errorf("get title %q: %w", title, err))
	}

	ids := res.GetIDs()
	docs := res.GetDocuments()
	metas := res.GetMetadatas()

	results := make([]Result, 0, len(ids))
	for i, id := range ids {
		r := Result{}
		r.ID = string(id)
		if i < len(docs) {
			r.Text = docs[i].ContentString()
		}
		if i < len(metas) && metas[i] != nil {
			m, err := decodeChromaMeta(metas[i])
			if err != nil {
				return nil, apperrors.NewStoreError(fmt.Errorf("decode metadata for %s: %w", r.ID, err))
			}
			m.fill(&r.Record)
		}
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].ParentID != results[j].ParentID {
			return results[i].ParentID < results[j].ParentID
		}
		return results[i].Ordinal < results[j].Ordinal
	})
	return results, nil
}

// DeleteByParent removes every record whose note_id metadata matches.
func (s *ChromaStore) DeleteByParent(ctx context.Context, parentID string) error {
	err := s.collection.Delete(ctx, chromago.WithWhereDelete(chromago.EqString("note_id", parentID)))
	if err != nil {
		return apperrors.NewStoreError(fmt.Errorf("delete parent %s: %w", parentID, err))
	}
	return nil
}

// Count reports the number of stored records.
func (s *ChromaStore) Count(ctx context.Context) (int, error) {
	n, err := s.collection.Count(ctx)
	if err != nil {
		return 0, apperrors.NewStoreError(err)
	}
	return int(n), nil
}

// Clear drops and recreates the collection.
func (s *ChromaStore) Clear(ctx context.Context) error {
	if err := s.client.DeleteCollection(ctx, s.name); err != nil {
		return apperrors.NewStoreError(fmt.Errorf("delete collection %s: %w", s.name, err))
	}
	collection, err := openCollection(s.client, s.name)
	if err != nil {
		return err
	}
	s.collection = collection
	return nil
}

// Close releases the chroma client.
func (s *ChromaStore) Close() error { return s.client.Close() }

// chromaMeta mirrors the metadata attributes written by Upsert.
// DocumentMetadata exposes no map accessor, so attributes are read back
// through a JSON round trip.
type chromaMeta struct {
	ParentID   string `json:"note_id"`
	Title      string `json:"note_title"`
	Ordinal    int    `json:"chunk_index"`
	SourceType string `json:"source_type"`
	UpdatedAt  int64  `json:"updated_at"`
}

func (m chromaMeta) fill(r *Record) {
	r.ParentID = m.ParentID
	r.Title = m.Title
	r.Ordinal = m.Ordinal
	r.SourceType = m.SourceType
	r.UpdatedAt = m.UpdatedAt
}

func decodeChromaMeta(m chromago.DocumentMetadata) (chromaMeta, error) {
	var out chromaMeta
	b, err := json.Marshal(m)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, err
	}
	return out, nil
}

// chromaWhere converts a Filter into a where clause, nil when the filter
// matches everything.
func chromaWhere(f *Filter) chromago.WhereFilter {
	if f == nil {
		return nil
	}
	var clauses []chromago.WhereFilter
	if len(f.SourceTypes) > 0 {
		eqs := make([]chromago.WhereFilter, 0, len(f.SourceTypes))
		for _, st := range f.SourceTypes {
			eqs = append(eqs, chromago.EqString("source_type", st))
		}
		if len(eqs) == 1 {
			clauses = append(clauses, eqs[0])
		} else {
			clauses = append(clauses, chromago.Or(eqs...))
		}
	}
	for _, st := range f.ExcludeSourceTypes {
		clauses = append(clauses, chromago.NeString("source_type", st))
	}
	switch len(clauses) {
	case 0:
		return nil
	case 1:
		return clauses[0]
	default:
		return chromago.And(clauses...)
	}
}
