package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMetadata() *DocumentMetadata {
	return &DocumentMetadata{
		Filename:         "Medical_Policy_organized.txt",
		OriginalFilename: "Medical Policy.txt",
		Category:         "medical",
		DocumentType:     DocumentTypePolicy,
		Date:             "2023-01-15",
		PolicyName:       "Medical Allowance Policy for KFG",
		FileSize:         2048,
		WordCount:        312,
		CharCount:        1980,
		Entities: Entities{
			Organizations: []string{"KFG", "KFG"},
			Positions:     []string{"AGM"},
			Amounts:       []string{"40,000"},
		},
		ProcessingDate: time.Date(2024, 3, 1, 10, 30, 0, 123, time.UTC),
		Version:        MetadataVersion,
		Status:         StatusProcessed,
	}
}

func TestEncodeDecodeMetadataRoundTrip(t *testing.T) {
	original := sampleMetadata()

	flat, err := EncodeMetadata("Medical_Policy", original)
	require.NoError(t, err)

	for key, value := range flat {
		assert.NotContains(t, value, "\x00", key)
	}
	assert.Equal(t, "Medical_Policy", flat.DocumentID())
	assert.Equal(t, "medical", flat.Category())
	assert.Equal(t, DocumentTypePolicy, flat.DocumentType())
	assert.Equal(t, "2048", flat[MetaFileSize])

	decoded, err := DecodeMetadata(flat)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestEncodeMetadataKeepsDuplicateEntities(t *testing.T) {
	flat, err := EncodeMetadata("doc", sampleMetadata())
	require.NoError(t, err)
	assert.Contains(t, flat[MetaEntities], `"organizations":["KFG","KFG"]`)
}

func TestEncodeMetadataZeroProcessingDate(t *testing.T) {
	m := sampleMetadata()
	m.ProcessingDate = time.Time{}

	flat, err := EncodeMetadata("doc", m)
	require.NoError(t, err)
	assert.Equal(t, "", flat[MetaProcessingDate])

	decoded, err := DecodeMetadata(flat)
	require.NoError(t, err)
	assert.True(t, decoded.ProcessingDate.IsZero())
}

func TestEncodeMetadataRejectsInvalid(t *testing.T) {
	m := sampleMetadata()
	m.Category = ""

	_, err := EncodeMetadata("doc", m)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMetadata))
	assert.Equal(t, ErrCodeValidation, CodeOf(err))
}

func TestDecodeMetadataErrors(t *testing.T) {
	valid, err := EncodeMetadata("doc", sampleMetadata())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(FlatMetadata)
	}{
		{"missing filename", func(f FlatMetadata) { delete(f, MetaFilename) }},
		{"missing date", func(f FlatMetadata) { f[MetaDate] = "" }},
		{"bad file size", func(f FlatMetadata) { f[MetaFileSize] = "big" }},
		{"bad entities", func(f FlatMetadata) { f[MetaEntities] = "{not json" }},
		{"bad processing date", func(f FlatMetadata) { f[MetaProcessingDate] = "yesterday" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flat := valid.Clone()
			tt.mutate(flat)
			_, err := DecodeMetadata(flat)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidMetadata))
		})
	}
}

func TestFlatMetadataDateDefaultsToUnknown(t *testing.T) {
	assert.Equal(t, DateUnknown, FlatMetadata{}.Date())
	assert.Equal(t, "2020-02-02", FlatMetadata{MetaDate: "2020-02-02"}.Date())
}

func TestSourceFromResult(t *testing.T) {
	r := SearchResult{
		ID:         "doc_chunk_0",
		Similarity: 0.42,
		Metadata: FlatMetadata{
			MetaFilename:     "doc_organized.txt",
			MetaCategory:     "leave",
			MetaDocumentType: "Notice",
		},
	}

	src := SourceFromResult(r)
	assert.Equal(t, Source{
		Filename:     "doc_organized.txt",
		Similarity:   0.42,
		Category:     "leave",
		DocumentType: DocumentTypeNotice,
		Date:         DateUnknown,
	}, src)
}
