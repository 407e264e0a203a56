package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FlatMetadata is the scalar-only form of DocumentMetadata kept next to each vector.
type FlatMetadata map[string]string

// Flat metadata keys.
const (
	MetaDocumentID       = "document_id"
	MetaFilename         = "filename"
	MetaOriginalFilename = "original_filename"
	MetaCategory         = "category"
	MetaDocumentType     = "document_type"
	MetaDate             = "date"
	MetaPolicyName       = "policy_name"
	MetaFileSize         = "file_size"
	MetaWordCount        = "word_count"
	MetaCharCount        = "char_count"
	MetaEntities         = "entities"
	MetaProcessingDate   = "processing_date"
	MetaVersion          = "version"
	MetaStatus           = "status"
)

// DocumentID returns the owning document id.
func (f FlatMetadata) DocumentID() string { return f[MetaDocumentID] }

// Category returns the stored category.
func (f FlatMetadata) Category() string { return f[MetaCategory] }

// DocumentType returns the stored document type.
func (f FlatMetadata) DocumentType() DocumentType { return DocumentType(f[MetaDocumentType]) }

// Filename returns the stored filename.
func (f FlatMetadata) Filename() string { return f[MetaFilename] }

// Date returns the stored date or the unknown sentinel.
func (f FlatMetadata) Date() string {
	if d := f[MetaDate]; d != "" {
		return d
	}
	return DateUnknown
}

// Clone returns an independent copy.
func (f FlatMetadata) Clone() FlatMetadata {
	out := make(FlatMetadata, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// EncodeMetadata flattens m for storage. Entity lists are encoded as a JSON string.
func EncodeMetadata(documentID string, m *DocumentMetadata) (FlatMetadata, error) {
	if err := ValidateMetadata(m); err != nil {
		return nil, Wrap(ErrInvalidMetadata, err)
	}

	entities, err := json.Marshal(m.Entities)
	if err != nil {
		return nil, Wrap(ErrInvalidMetadata, fmt.Errorf("failed to encode entities: %w", err))
	}

	flat := FlatMetadata{
		MetaDocumentID:       documentID,
		MetaFilename:         m.Filename,
		MetaOriginalFilename: m.OriginalFilename,
		MetaCategory:         m.Category,
		MetaDocumentType:     string(m.DocumentType),
		MetaDate:             m.Date,
		MetaPolicyName:       m.PolicyName,
		MetaFileSize:         strconv.FormatInt(m.FileSize, 10),
		MetaWordCount:        strconv.Itoa(m.WordCount),
		MetaCharCount:        strconv.Itoa(m.CharCount),
		MetaEntities:         string(entities),
		MetaVersion:          m.Version,
		MetaStatus:           m.Status,
	}
	if !m.ProcessingDate.IsZero() {
		flat[MetaProcessingDate] = m.ProcessingDate.UTC().Format(time.RFC3339Nano)
	} else {
		flat[MetaProcessingDate] = ""
	}

	return flat, nil
}

// DecodeMetadata rebuilds the structured record from its flat form.
func DecodeMetadata(flat FlatMetadata) (*DocumentMetadata, error) {
	for _, key := range []string{MetaFilename, MetaCategory, MetaDocumentType, MetaDate} {
		if flat[key] == "" {
			return nil, Wrap(ErrInvalidMetadata, fmt.Errorf("missing key %q", key))
		}
	}

	m := &DocumentMetadata{
		Filename:         flat[MetaFilename],
		OriginalFilename: flat[MetaOriginalFilename],
		Category:         flat[MetaCategory],
		DocumentType:     DocumentType(flat[MetaDocumentType]),
		Date:             flat[MetaDate],
		PolicyName:       flat[MetaPolicyName],
		Version:          flat[MetaVersion],
		Status:           flat[MetaStatus],
	}

	var err error
	if m.FileSize, err = parseInt64(flat, MetaFileSize); err != nil {
		return nil, err
	}
	wc, err := parseInt64(flat, MetaWordCount)
	if err != nil {
		return nil, err
	}
	m.WordCount = int(wc)
	cc, err := parseInt64(flat, MetaCharCount)
	if err != nil {
		return nil, err
	}
	m.CharCount = int(cc)

	if raw := flat[MetaEntities]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &m.Entities); err != nil {
			return nil, Wrap(ErrInvalidMetadata, fmt.Errorf("failed to decode entities: %w", err))
		}
	}

	if raw := flat[MetaProcessingDate]; raw != "" {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, Wrap(ErrInvalidMetadata, fmt.Errorf("failed to parse processing_date: %w", err))
		}
		m.ProcessingDate = ts
	}

	return m, nil
}

func parseInt64(flat FlatMetadata, key string) (int64, error) {
	raw := flat[key]
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, Wrap(ErrInvalidMetadata, fmt.Errorf("key %q: %w", key, err))
	}
	return v, nil
}
