package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/telemetry"
	"github.com/google/uuid"
)

// Corpus layout, relative to the output root.
const (
	OrganizedDir      = "organized"
	ByCategoryDir     = "organized/by_category"
	ByTypeDir         = "organized/by_type"
	MetadataDir       = "metadata"
	DocumentIndexFile = "document_index.json"

	OrganizedSuffix = "_organized.txt"
	MetadataSuffix  = "_metadata.json"
)

// CorpusSink receives the organized corpus files.
type CorpusSink interface {
	WriteFile(ctx context.Context, rel string, data []byte) error
}

type dirEnsurer interface {
	EnsureDirs(ctx context.Context, rels ...string) error
}

type fileRemover interface {
	RemoveFile(ctx context.Context, rel string) error
}

// BatchResult is the outcome of organizing a corpus directory.
type BatchResult struct {
	Outcomes []domain.FileOutcome  `json:"outcomes"`
	Index    *domain.DocumentIndex `json:"index"`
}

// Succeeded returns the outcomes that produced an organized document.
func (r *BatchResult) Succeeded() []domain.FileOutcome {
	out := make([]domain.FileOutcome, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		if o.Status == domain.FileStatusSuccess {
			out = append(out, o)
		}
	}
	return out
}

// DocumentOrganizer normalizes and classifies every file of a corpus and
// writes the category and type partitioned layout.
type DocumentOrganizer struct {
	normalizer *TextNormalizer
	extractor  *MetadataExtractor
	sink       CorpusSink
	newBatchID func() string
	now        func() time.Time
}

// NewDocumentOrganizer creates an organizer writing to sink.
func NewDocumentOrganizer(normalizer *TextNormalizer, extractor *MetadataExtractor, sink CorpusSink) *DocumentOrganizer {
	return &DocumentOrganizer{
		normalizer: normalizer,
		extractor:  extractor,
		sink:       sink,
		newBatchID: func() string { return uuid.New().String() },
		now:        time.Now,
	}
}

// OrganizeDir processes every .txt file directly under dir. A missing or
// unreadable directory is an error; failures on single files are recorded in
// the result and the batch continues.
func (o *DocumentOrganizer) OrganizeDir(ctx context.Context, dir string) (*BatchResult, error) {
	batchID := o.newBatchID()
	ctx, span := telemetry.StartSpan(ctx, "DocumentOrganizer.OrganizeDir", telemetry.SpanAttributes{
		Operation: "organize",
	})
	defer span.End()

	entries, err := os.ReadDir(dir)
	if err != nil {
		span.SetError(err)
		return nil, domain.Wrap(domain.ErrFileUnreadable, fmt.Errorf("failed to read corpus directory %s: %w", dir, err))
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	if d, ok := o.sink.(dirEnsurer); ok {
		if err := d.EnsureDirs(ctx, OrganizedDir, ByCategoryDir, ByTypeDir, MetadataDir); err != nil {
			span.SetError(err)
			return nil, domain.Wrap(domain.ErrWriteLayout, err)
		}
	}

	log.Printf("organizer: batch %s processing %d files from %s", batchID, len(files), dir)

	result := &BatchResult{
		Outcomes: make([]domain.FileOutcome, 0, len(files)),
		Index:    domain.NewDocumentIndex(batchID, o.now().UTC()),
	}
	// Names that clean to the same id would overwrite each other; the first
	// organized file keeps the id.
	claimed := make(map[string]string, len(files))
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := CleanFilename(name)
		var outcome domain.FileOutcome
		if first, ok := claimed[id]; ok {
			outcome = domain.FileOutcome{
				Filename: name,
				Status:   domain.FileStatusFailed,
				Error:    domain.Wrap(domain.ErrDuplicateDocument, fmt.Errorf("id %s already taken by %s", id, first)).Error(),
			}
		} else {
			outcome = o.organizeFile(ctx, filepath.Join(dir, name), name)
			if outcome.Status == domain.FileStatusSuccess {
				claimed[id] = name
			}
		}
		switch outcome.Status {
		case domain.FileStatusFailed:
			log.Printf("organizer: %s failed: %s", name, outcome.Error)
		case domain.FileStatusSkipped:
			log.Printf("organizer: skipping %s: %s", name, outcome.Error)
		}
		result.Outcomes = append(result.Outcomes, outcome)
		result.Index.Record(outcome)
	}

	data, err := json.MarshalIndent(result.Index, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode document index: %w", err)
	}
	if err := o.sink.WriteFile(ctx, DocumentIndexFile, data); err != nil {
		span.SetError(err)
		return nil, domain.Wrap(domain.ErrWriteLayout, err)
	}

	log.Printf("organizer: batch %s done: %d organized, %d failed, %d skipped",
		batchID, result.Index.TotalDocuments, result.Index.ErrorCount, result.Index.SkippedCount)

	return result, nil
}

// OrganizeFile processes a single file and writes it into the layout.
func (o *DocumentOrganizer) OrganizeFile(ctx context.Context, filePath string) domain.FileOutcome {
	return o.organizeFile(ctx, filePath, filepath.Base(filePath))
}

func (o *DocumentOrganizer) organizeFile(ctx context.Context, filePath, name string) domain.FileOutcome {
	outcome := domain.FileOutcome{Filename: name}

	raw, err := os.ReadFile(filePath)
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

	doc, meta := o.Process(name, text, int64(len(raw)))
	if doc.CleanedText == "" {
		outcome.Status = domain.FileStatusSkipped
		outcome.Error = domain.ErrEmptyDocument.Error()
		return outcome
	}

	if err := o.write(ctx, doc, meta); err != nil {
		outcome.Status = domain.FileStatusFailed
		outcome.Error = domain.Wrap(domain.ErrWriteLayout, err).Error()
		return outcome
	}

	outcome.Status = domain.FileStatusSuccess
	outcome.OrganizedFilename = meta.Filename
	outcome.Metadata = meta
	return outcome
}

// Process normalizes text and extracts its metadata. The metadata filename is
// the organized filename; the source name is kept as original_filename.
func (o *DocumentOrganizer) Process(name, text string, size int64) (*domain.Document, *domain.DocumentMetadata) {
	clean := CleanFilename(name)
	organized := clean + OrganizedSuffix

	cleaned := o.normalizer.Normalize(text)
	meta := o.extractor.Extract(cleaned, name, size)
	meta.Filename = organized
	meta.OriginalFilename = name

	return domain.NewDocument(clean, organized, text, cleaned, size), meta
}

// OrganizeText processes text received outside a corpus directory and writes
// it into the layout.
func (o *DocumentOrganizer) OrganizeText(ctx context.Context, name, text string, size int64) (*domain.Document, *domain.DocumentMetadata, error) {
	text = strings.ToValidUTF8(text, "")
	if strings.TrimSpace(text) == "" {
		return nil, nil, domain.ErrEmptyDocument
	}
	doc, meta := o.Process(name, text, size)
	if doc.CleanedText == "" {
		return nil, nil, domain.ErrEmptyDocument
	}
	if err := o.write(ctx, doc, meta); err != nil {
		return nil, nil, domain.Wrap(domain.ErrWriteLayout, err)
	}
	return doc, meta, nil
}

// Remove deletes the organized copies and the metadata file of document id.
// category and docType locate the partitioned copies; empty values skip
// them. Sinks that cannot remove files are left untouched.
func (o *DocumentOrganizer) Remove(ctx context.Context, id, category string, docType domain.DocumentType) error {
	r, ok := o.sink.(fileRemover)
	if !ok {
		return nil
	}

	name := id + OrganizedSuffix
	paths := []string{path.Join(OrganizedDir, name), path.Join(MetadataDir, id+MetadataSuffix)}
	if category != "" {
		paths = append(paths, path.Join(ByCategoryDir, category, name))
	}
	if docType != "" {
		paths = append(paths, path.Join(ByTypeDir, string(docType), name))
	}

	var errs []error
	for _, p := range paths {
		if err := r.RemoveFile(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Extractor returns the metadata extractor used by the organizer.
func (o *DocumentOrganizer) Extractor() *MetadataExtractor {
	return o.extractor
}

func (o *DocumentOrganizer) write(ctx context.Context, doc *domain.Document, meta *domain.DocumentMetadata) error {
	body := []byte(doc.CleanedText)
	paths := []string{
		path.Join(OrganizedDir, doc.Filename),
		path.Join(ByCategoryDir, meta.Category, doc.Filename),
		path.Join(ByTypeDir, string(meta.DocumentType), doc.Filename),
	}
	for _, p := range paths {
		if err := o.sink.WriteFile(ctx, p, body); err != nil {
			return err
		}
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	return o.sink.WriteFile(ctx, path.Join(MetadataDir, doc.ID+MetadataSuffix), data)
}

var (
	filenameDisallowed = regexp.MustCompile(`[^\p{L}\p{M}\p{N}_\s.\-]`)
	filenameSpaces     = regexp.MustCompile(`\s+`)
)

// CleanFilename turns a source filename into the stem used for organized
// files: the extension and disallowed characters are dropped, whitespace
// becomes underscores.
func CleanFilename(name string) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	stem = filenameDisallowed.ReplaceAllString(stem, "")
	stem = filenameSpaces.ReplaceAllString(stem, "_")
	stem = strings.ReplaceAll(stem, "__", "_")
	stem = strings.Trim(stem, "_")
	if stem == "" {
		return "document"
	}
	return stem
}
