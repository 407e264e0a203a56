package domain

import (
	"fmt"
	"strings"
	"time"
)

// DocumentType is the genre axis of classification.
type DocumentType string

const (
	DocumentTypePolicy    DocumentType = "Policy"
	DocumentTypeNotice    DocumentType = "Notice"
	DocumentTypeCircular  DocumentType = "Circular"
	DocumentTypeOrder     DocumentType = "Order"
	DocumentTypeProposal  DocumentType = "Proposal"
	DocumentTypeProcedure DocumentType = "Procedure"
	DocumentTypeDocument  DocumentType = "Document"
)

const (
	// DefaultCategory is used when no category keyword matches.
	DefaultCategory = "general"
	// DateUnknown is stored when no date pattern matches.
	DateUnknown = "unknown"
	// MetadataVersion is the schema version written with every metadata record.
	MetadataVersion = "2.0"
	// StatusProcessed marks metadata produced by a successful extraction.
	StatusProcessed = "processed"
)

// Document is a processed corpus file. It is never mutated; reprocessing builds a new one.
type Document struct {
	ID          string
	Filename    string
	RawText     string
	CleanedText string
	SizeBytes   int64
	WordCount   int
}

// NewDocument builds a Document from a file's raw and cleaned text.
func NewDocument(id, filename, raw, cleaned string, size int64) *Document {
	return &Document{
		ID:          id,
		Filename:    filename,
		RawText:     raw,
		CleanedText: cleaned,
		SizeBytes:   size,
		WordCount:   len(strings.Fields(cleaned)),
	}
}

// Entities holds regex-extracted mentions. Lists keep every match, duplicates included.
type Entities struct {
	Organizations []string `json:"organizations"`
	Positions     []string `json:"positions"`
	Amounts       []string `json:"amounts"`
}

// DocumentMetadata is the per-document metadata record.
// The JSON field names are read by external tools and must stay stable.
type DocumentMetadata struct {
	Filename         string       `json:"filename"`
	OriginalFilename string       `json:"original_filename"`
	Category         string       `json:"category"`
	DocumentType     DocumentType `json:"document_type"`
	Date             string       `json:"date"`
	PolicyName       string       `json:"policy_name"`
	FileSize         int64        `json:"file_size"`
	WordCount        int          `json:"word_count"`
	CharCount        int          `json:"char_count"`
	Entities         Entities     `json:"entities"`
	ProcessingDate   time.Time    `json:"processing_date"`
	Version          string       `json:"version"`
	Status           string       `json:"status"`
}

// ValidateMetadata checks the fields every stored record relies on.
func ValidateMetadata(m *DocumentMetadata) error {
	if m == nil {
		return fmt.Errorf("metadata cannot be nil")
	}
	if m.Filename == "" {
		return fmt.Errorf("metadata Filename is required")
	}
	if m.Category == "" {
		return fmt.Errorf("metadata Category is required")
	}
	if m.DocumentType == "" {
		return fmt.Errorf("metadata DocumentType is required")
	}
	if m.Date == "" {
		return fmt.Errorf("metadata Date is required")
	}
	return nil
}

// DocumentIDFromFilename derives the stable document id used by the vector index.
func DocumentIDFromFilename(filename string) string {
	name := filename
	for _, suffix := range []string{"_organized.txt", ".txt"} {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}
	return name
}

// ChunkID is the id of the single vector stored for a document.
func ChunkID(documentID string) string {
	return documentID + "_chunk_0"
}
