package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/telemetry"
)

// DocumentIndexer is the write side of the vector index.
type DocumentIndexer interface {
	Add(ctx context.Context, id, text string, meta *domain.DocumentMetadata) (int, error)
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
}

// IndexResult is the outcome of indexing an organized corpus.
type IndexResult struct {
	Outcomes []domain.FileOutcome `json:"outcomes"`
	Indexed  int                  `json:"indexed"`
	Failed   int                  `json:"failed"`
	Skipped  int                  `json:"skipped"`
}

func (r *IndexResult) record(o domain.FileOutcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case domain.FileStatusSuccess:
		r.Indexed++
	case domain.FileStatusFailed:
		r.Failed++
	case domain.FileStatusSkipped:
		r.Skipped++
	}
}

// IngestService moves organized documents into the vector index.
type IngestService struct {
	index     DocumentIndexer
	organizer *DocumentOrganizer
}

// NewIngestService creates an IngestService.
func NewIngestService(index DocumentIndexer, organizer *DocumentOrganizer) *IngestService {
	return &IngestService{
		index:     index,
		organizer: organizer,
	}
}

// IndexOrganized adds every organized document under root to the index, one
// vector per document. Metadata comes from the matching metadata file; when
// it is missing or unreadable it is extracted again from the text.
func (s *IngestService) IndexOrganized(ctx context.Context, root string) (*IndexResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.IndexOrganized", telemetry.SpanAttributes{
		Operation: "index",
	})
	defer span.End()

	dir := filepath.Join(root, filepath.FromSlash(OrganizedDir))
	entries, err := os.ReadDir(dir)
	if err != nil {
		span.SetError(err)
		return nil, domain.Wrap(domain.ErrFileUnreadable, fmt.Errorf("failed to read organized directory %s: %w", dir, err))
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), OrganizedSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	result := &IndexResult{Outcomes: make([]domain.FileOutcome, 0, len(names))}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		outcome := s.indexOrganizedFile(ctx, root, name)
		if outcome.Status != domain.FileStatusSuccess {
			log.Printf("ingest: %s %s: %s", name, outcome.Status, outcome.Error)
		}
		result.record(outcome)
	}

	log.Printf("ingest: indexed %d documents from %s (%d failed, %d skipped)", result.Indexed, dir, result.Failed, result.Skipped)
	return result, nil
}

func (s *IngestService) indexOrganizedFile(ctx context.Context, root, name string) domain.FileOutcome {
	outcome := domain.FileOutcome{Filename: name, OrganizedFilename: name}

	raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(OrganizedDir), name))
	if err != nil {
		outcome.Status = domain.FileStatusFailed
		outcome.Error = domain.Wrap(domain.ErrFileUnreadable, err).Error()
		return outcome
	}
	text := strings.ToValidUTF8(string(raw), "")
	if strings.TrimSpace(text) == "" {
		outcome.Status = domain.FileStatusSkipped
		outcome.Error = domain.ErrEmptyDocument.Error()
		return outcome
	}

	id := domain.DocumentIDFromFilename(name)
	meta, err := readMetadataFile(filepath.Join(root, filepath.FromSlash(MetadataDir), id+MetadataSuffix))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("ingest: metadata for %s unusable, extracting again: %v", name, err)
		}
		meta = s.organizer.Extractor().Extract(text, name, int64(len(raw)))
	}
	meta.Filename = name

	if _, err := s.index.Add(ctx, id, text, meta); err != nil {
		outcome.Status = domain.FileStatusFailed
		outcome.Error = err.Error()
		return outcome
	}

	outcome.Status = domain.FileStatusSuccess
	outcome.Metadata = meta
	return outcome
}

func readMetadataFile(p string) (*domain.DocumentMetadata, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var meta domain.DocumentMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", p, err)
	}
	if err := domain.ValidateMetadata(&meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// IngestText organizes a single uploaded document and adds it to the index.
func (s *IngestService) IngestText(ctx context.Context, filename, text string) (*domain.DocumentMetadata, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, domain.Wrap(domain.ErrMissingRequiredField, fmt.Errorf("filename is required"))
	}

	ctx, span := telemetry.StartSpan(ctx, "IngestService.IngestText", telemetry.SpanAttributes{
		Operation: "ingest",
	})
	defer span.End()

	doc, meta, err := s.organizer.OrganizeText(ctx, filepath.Base(filename), text, int64(len(text)))
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if _, err := s.index.Add(ctx, doc.ID, doc.CleanedText, meta); err != nil {
		span.SetError(err)
		return nil, err
	}

	log.Printf("ingest: added %s as %s (category %s, type %s)", filename, doc.ID, meta.Category, meta.DocumentType)
	return meta, nil
}

// RemoveDocument deletes the organized files of a document that has left the
// index, so that a later Rebuild does not index it again. meta is the
// document's stored metadata.
func (s *IngestService) RemoveDocument(ctx context.Context, id string, meta domain.FlatMetadata) error {
	if err := s.organizer.Remove(ctx, id, meta.Category(), meta.DocumentType()); err != nil {
		return domain.Wrap(domain.ErrWriteLayout, err)
	}
	log.Printf("ingest: removed organized files of %s", id)
	return nil
}

// IngestFile reads a document from disk and ingests it under filename.
// An empty filename means the base name of path.
func (s *IngestService) IngestFile(ctx context.Context, path, filename string) (*domain.DocumentMetadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.Wrap(domain.ErrFileUnreadable, err)
	}
	if filename == "" {
		filename = filepath.Base(path)
	}
	return s.IngestText(ctx, filename, string(raw))
}

// Rebuild clears the index and indexes the organized corpus again.
func (s *IngestService) Rebuild(ctx context.Context, root string) (*IndexResult, error) {
	if err := s.index.Clear(ctx); err != nil {
		return nil, err
	}
	return s.IndexOrganized(ctx, root)
}
