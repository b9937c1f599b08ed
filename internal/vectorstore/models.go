package vectorstore

// Reserved metadata keys used by the citation path. Records queried with
// citations enabled must carry both.
const (
	// MetadataURL is the original source URL or path of a record.
	MetadataURL = "url"

	// MetadataDocID is the logical document id a chunk belongs to.
	MetadataDocID = "doc_id"
)

// DefaultBatchSize is the number of records written per backend call in Add.
// Callers pass arbitrarily large sets; adapters chunk internally.
const DefaultBatchSize = 100

// Document is one stored record: a content-hash id, the chunk text, and
// opaque metadata used for filtering and citations.
type Document struct {
	// ID is a deterministic content hash (sha256 of text + source).
	// Identical content from the same source never produces two ids.
	ID string

	// Text is the chunk content.
	Text string

	// Metadata contains scalar key-value pairs for filtering.
	// The url and doc_id keys are reserved for the citation path.
	Metadata map[string]any
}

// AddRequest is a batched insert. IDs, Texts and Metadatas are parallel
// slices. Embeddings is optional; when nil the adapter computes embeddings
// via the injected embedder.
type AddRequest struct {
	IDs        []string
	Texts      []string
	Metadatas  []map[string]any
	Embeddings [][]float32
}

// Len returns the number of records in the request.
func (r AddRequest) Len() int { return len(r.IDs) }

// Slice returns the sub-request covering records [lo, hi).
func (r AddRequest) Slice(lo, hi int) AddRequest {
	out := AddRequest{
		IDs:   r.IDs[lo:hi],
		Texts: r.Texts[lo:hi],
	}
	if r.Metadatas != nil {
		out.Metadatas = r.Metadatas[lo:hi]
	}
	if r.Embeddings != nil {
		out.Embeddings = r.Embeddings[lo:hi]
	}
	return out
}

// QueryRequest describes a similarity search. Exactly one of Text or Vector
// must be set; when Vector is nil the adapter embeds Text.
type QueryRequest struct {
	// Text is the query string to embed.
	Text string

	// Vector is a pre-computed query embedding. Skips the embedder when set.
	Vector []float32

	// NResults is the number of nearest neighbors to fetch.
	NResults int

	// Where filters results by metadata equality. Multiple keys are ANDed.
	Where map[string]any

	// Citations requests provenance triples instead of bare contexts.
	// Every matching record must carry url and doc_id metadata.
	Citations bool
}

// Citation is the provenance triple returned for citation queries.
type Citation struct {
	// Context is the retrieved chunk text.
	Context string

	// SourceID is the original URL or path, not the physical store id.
	SourceID string

	// DocID is the logical document id.
	DocID string
}

// QueryResult is one ranked hit from a similarity search.
type QueryResult struct {
	// Context is the retrieved chunk text.
	Context string

	// Metadata is the stored metadata of the hit.
	Metadata map[string]any

	// Score is the backend's similarity score (higher = more similar).
	Score float32
}

// Citation extracts the provenance triple from a result. Returns
// ErrMissingCitationMetadata if either reserved key is absent: silently
// losing provenance defeats the purpose of citations.
func (r QueryResult) Citation() (Citation, error) {
	url, ok := r.Metadata[MetadataURL].(string)
	if !ok || url == "" {
		return Citation{}, ErrMissingCitationMetadata
	}
	docID, ok := r.Metadata[MetadataDocID].(string)
	if !ok || docID == "" {
		return Citation{}, ErrMissingCitationMetadata
	}
	return Citation{Context: r.Context, SourceID: url, DocID: docID}, nil
}
