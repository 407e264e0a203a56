package domain

import "time"

// FileStatus tags the outcome of processing one corpus file.
type FileStatus string

const (
	FileStatusSuccess FileStatus = "success"
	FileStatusFailed  FileStatus = "failed"
	FileStatusSkipped FileStatus = "skipped"
)

// FileOutcome is the per-file result of a batch. Metadata is set on success,
// Error on failure or skip.
type FileOutcome struct {
	Filename          string            `json:"filename"`
	OrganizedFilename string            `json:"organized_filename,omitempty"`
	Status            FileStatus        `json:"status"`
	Metadata          *DocumentMetadata `json:"metadata,omitempty"`
	Error             string            `json:"error,omitempty"`
}

// DocumentIndex is the persisted summary of an organized corpus.
// Categories and Types map each label to the filenames carrying it.
type DocumentIndex struct {
	BatchID        string              `json:"batch_id"`
	GeneratedAt    time.Time           `json:"generated_at"`
	TotalDocuments int                 `json:"total_documents"`
	ErrorCount     int                 `json:"error_count"`
	SkippedCount   int                 `json:"skipped_count"`
	Categories     map[string][]string `json:"categories"`
	Types          map[string][]string `json:"types"`
	CategoryCounts map[string]int      `json:"category_counts"`
	TypeCounts     map[string]int      `json:"type_counts"`
	Documents      []DocumentMetadata  `json:"documents"`
}

// NewDocumentIndex returns an empty index with non-nil collections.
func NewDocumentIndex(batchID string, generatedAt time.Time) *DocumentIndex {
	return &DocumentIndex{
		BatchID:        batchID,
		GeneratedAt:    generatedAt,
		Categories:     map[string][]string{},
		Types:          map[string][]string{},
		CategoryCounts: map[string]int{},
		TypeCounts:     map[string]int{},
		Documents:      []DocumentMetadata{},
	}
}

// Record adds the outcome of one file to the index.
func (idx *DocumentIndex) Record(o FileOutcome) {
	switch o.Status {
	case FileStatusFailed:
		idx.ErrorCount++
	case FileStatusSkipped:
		idx.SkippedCount++
	case FileStatusSuccess:
		if o.Metadata == nil {
			return
		}
		m := *o.Metadata
		idx.TotalDocuments++
		idx.Documents = append(idx.Documents, m)
		category := m.Category
		docType := string(m.DocumentType)
		idx.Categories[category] = append(idx.Categories[category], m.Filename)
		idx.Types[docType] = append(idx.Types[docType], m.Filename)
		idx.CategoryCounts[category]++
		idx.TypeCounts[docType]++
	}
}
