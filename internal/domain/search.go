package domain

// SearchResult is one ranked hit returned by the vector index.
type SearchResult struct {
	ID         string       `json:"id"`
	Document   string       `json:"document"`
	Metadata   FlatMetadata `json:"metadata"`
	Similarity float64      `json:"similarity"`
	Distance   float64      `json:"distance"`
}

// Source is the provenance entry returned with a chat answer.
type Source struct {
	Filename     string       `json:"filename"`
	Similarity   float64      `json:"similarity"`
	Category     string       `json:"category"`
	DocumentType DocumentType `json:"document_type"`
	Date         string       `json:"date"`
}

// SourceFromResult builds the provenance entry for r.
func SourceFromResult(r SearchResult) Source {
	return Source{
		Filename:     r.Metadata.Filename(),
		Similarity:   r.Similarity,
		Category:     r.Metadata.Category(),
		DocumentType: r.Metadata.DocumentType(),
		Date:         r.Metadata.Date(),
	}
}

// IndexStats summarizes the vector collection.
type IndexStats struct {
	TotalVectors int    `json:"total_vectors"`
	Collection   string `json:"collection"`
}

// VectorRecord is one stored entry of a vector collection.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Document  string
	Metadata  FlatMetadata
}

// VectorHit is a record returned by a nearest-neighbour query with its raw L2 distance.
type VectorHit struct {
	VectorRecord
	Distance float64
}

// ChatMessage is one turn of a conversation sent to the completion service.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)
