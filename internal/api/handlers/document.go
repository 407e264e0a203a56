package handlers

import (
	"context"
	"log"
	"net/http"
	"strings"

	"github.com/cloo-solutions/policyrag/internal/api"
	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/service"
	"github.com/go-chi/chi/v5"
)

type DocumentStore interface {
	Get(ctx context.Context, id string) (*domain.VectorRecord, error)
	Delete(ctx context.Context, id string) error
}

type DocumentIngester interface {
	IngestText(ctx context.Context, filename, text string) (*domain.DocumentMetadata, error)
	Rebuild(ctx context.Context, root string) (*service.IndexResult, error)
	RemoveDocument(ctx context.Context, id string, meta domain.FlatMetadata) error
}

type DocumentHandler struct {
	store    DocumentStore
	ingester DocumentIngester
	root     string
}

// NewDocumentHandler creates a DocumentHandler. root is the organized corpus
// directory read by index rebuilds.
func NewDocumentHandler(store DocumentStore, ingester DocumentIngester, root string) *DocumentHandler {
	return &DocumentHandler{store: store, ingester: ingester, root: root}
}

type UploadDocumentRequest struct {
	Filename string `json:"filename"`
	Text     string `json:"text"`
}

type DocumentResponse struct {
	ID       string              `json:"id"`
	ChunkID  string              `json:"chunk_id"`
	Text     string              `json:"text"`
	Metadata domain.FlatMetadata `json:"metadata"`
}

type UploadDocumentResponse struct {
	ID       string                   `json:"id"`
	Metadata *domain.DocumentMetadata `json:"metadata"`
}

type RebuildResponse struct {
	Indexed  int                  `json:"indexed"`
	Failed   int                  `json:"failed"`
	Skipped  int                  `json:"skipped"`
	Outcomes []domain.FileOutcome `json:"outcomes"`
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	rec, err := h.store.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, DocumentResponse{
		ID:       rec.Metadata.DocumentID(),
		ChunkID:  rec.ID,
		Text:     rec.Document,
		Metadata: rec.Metadata,
	})
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req UploadDocumentRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.Filename) == "" {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		api.Error(w, http.StatusBadRequest, "text is required")
		return
	}

	meta, err := h.ingester.IngestText(r.Context(), req.Filename, req.Text)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, UploadDocumentResponse{
		ID:       service.CleanFilename(req.Filename),
		Metadata: meta,
	})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	record, err := h.store.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	if err := h.store.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	// the vectors are gone; leftover files only matter to the next rebuild
	if err := h.ingester.RemoveDocument(r.Context(), id, record.Metadata); err != nil {
		log.Printf("documents: %s deleted but its organized files remain: %v", id, err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	result, err := h.ingester.Rebuild(r.Context(), h.root)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	outcomes := result.Outcomes
	if outcomes == nil {
		outcomes = []domain.FileOutcome{}
	}
	api.Success(w, http.StatusOK, RebuildResponse{
		Indexed:  result.Indexed,
		Failed:   result.Failed,
		Skipped:  result.Skipped,
		Outcomes: outcomes,
	})
}
