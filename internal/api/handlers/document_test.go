package handlers

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDocumentStore struct {
	mock.Mock
}

func (m *MockDocumentStore) Get(ctx context.Context, id string) (*domain.VectorRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.VectorRecord), args.Error(1)
}

func (m *MockDocumentStore) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) IngestText(ctx context.Context, filename, text string) (*domain.DocumentMetadata, error) {
	args := m.Called(ctx, filename, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DocumentMetadata), args.Error(1)
}

func (m *MockIngester) Rebuild(ctx context.Context, root string) (*service.IndexResult, error) {
	args := m.Called(ctx, root)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IndexResult), args.Error(1)
}

func (m *MockIngester) RemoveDocument(ctx context.Context, id string, meta domain.FlatMetadata) error {
	args := m.Called(ctx, id, meta)
	return args.Error(0)
}

func documentRouter(h *DocumentHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/documents/{id}", h.Get)
	r.Delete("/documents/{id}", h.Delete)
	r.Post("/documents", h.Upload)
	r.Post("/index/rebuild", h.Rebuild)
	return r
}

func testRecord() *domain.VectorRecord {
	return &domain.VectorRecord{
		ID:       "Medical_Policy_chunk_0",
		Document: "Medical allowance is paid monthly.",
		Metadata: domain.FlatMetadata{
			domain.MetaDocumentID:   "Medical_Policy",
			domain.MetaFilename:     "Medical_Policy_organized.txt",
			domain.MetaCategory:     "medical",
			domain.MetaDocumentType: "Policy",
			domain.MetaDate:         "2023-01-01",
		},
	}
}

func TestDocumentHandler_Get(t *testing.T) {
	store := new(MockDocumentStore)
	h := NewDocumentHandler(store, new(MockIngester), "/corpus")

	store.On("Get", mock.Anything, "Medical_Policy").Return(testRecord(), nil)

	w := httptest.NewRecorder()
	documentRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/Medical_Policy", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp DocumentResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "Medical_Policy", resp.ID)
	assert.Equal(t, "Medical_Policy_chunk_0", resp.ChunkID)
	assert.Equal(t, "Medical allowance is paid monthly.", resp.Text)
	assert.Equal(t, "medical", resp.Metadata.Category())
}

func TestDocumentHandler_Get_NotFound(t *testing.T) {
	store := new(MockDocumentStore)
	h := NewDocumentHandler(store, new(MockIngester), "/corpus")

	store.On("Get", mock.Anything, "missing").Return(nil, domain.ErrDocumentNotFound)

	w := httptest.NewRecorder()
	documentRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, domain.ErrCodeNotFound, decodeError(t, w)["code"])
}

func TestDocumentHandler_Upload(t *testing.T) {
	ingester := new(MockIngester)
	h := NewDocumentHandler(new(MockDocumentStore), ingester, "/corpus")

	meta := &domain.DocumentMetadata{
		Filename:         "TA DA Policy_organized.txt",
		OriginalFilename: "TA DA Policy.txt",
		Category:         "travel",
		DocumentType:     domain.DocumentTypePolicy,
		Date:             domain.DateUnknown,
	}
	ingester.On("IngestText", mock.Anything, "TA DA Policy.txt", "Daily allowance rates").Return(meta, nil)

	body := `{"filename":"TA DA Policy.txt","text":"Daily allowance rates"}`
	w := httptest.NewRecorder()
	documentRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte(body))))

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp UploadDocumentResponse
	decodeData(t, w, &resp)
	assert.Equal(t, "TA_DA_Policy", resp.ID)
	require.NotNil(t, resp.Metadata)
	assert.Equal(t, "travel", resp.Metadata.Category)
	ingester.AssertExpectations(t)
}

func TestDocumentHandler_Upload_Validation(t *testing.T) {
	ingester := new(MockIngester)
	h := NewDocumentHandler(new(MockDocumentStore), ingester, "/corpus")

	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{`, "invalid request body"},
		{"missing filename", `{"text":"abc"}`, "filename is required"},
		{"blank text", `{"filename":"a.txt","text":"  "}`, "text is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			documentRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte(tt.body))))

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, decodeError(t, w)["error"])
		})
	}
	ingester.AssertNotCalled(t, "IngestText", mock.Anything, mock.Anything, mock.Anything)
}

func TestDocumentHandler_Upload_EmbeddingFailure(t *testing.T) {
	ingester := new(MockIngester)
	h := NewDocumentHandler(new(MockDocumentStore), ingester, "/corpus")

	ingester.On("IngestText", mock.Anything, "a.txt", "text").
		Return(nil, domain.Wrap(domain.ErrEmbeddingFailed, errors.New("quota")))

	w := httptest.NewRecorder()
	documentRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte(`{"filename":"a.txt","text":"text"}`))))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestDocumentHandler_Delete(t *testing.T) {
	t.Run("existing", func(t *testing.T) {
		store := new(MockDocumentStore)
		ingester := new(MockIngester)
		h := NewDocumentHandler(store, ingester, "/corpus")
		store.On("Get", mock.Anything, "Medical_Policy").Return(testRecord(), nil)
		store.On("Delete", mock.Anything, "Medical_Policy").Return(nil)
		ingester.On("RemoveDocument", mock.Anything, "Medical_Policy", testRecord().Metadata).Return(nil)

		w := httptest.NewRecorder()
		documentRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/Medical_Policy", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
		store.AssertExpectations(t)
		ingester.AssertExpectations(t)
	})

	t.Run("file cleanup failure still deletes", func(t *testing.T) {
		store := new(MockDocumentStore)
		ingester := new(MockIngester)
		h := NewDocumentHandler(store, ingester, "/corpus")
		store.On("Get", mock.Anything, "Medical_Policy").Return(testRecord(), nil)
		store.On("Delete", mock.Anything, "Medical_Policy").Return(nil)
		ingester.On("RemoveDocument", mock.Anything, "Medical_Policy", mock.Anything).
			Return(domain.Wrap(domain.ErrWriteLayout, errors.New("read-only")))

		w := httptest.NewRecorder()
		documentRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/Medical_Policy", nil))

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("missing", func(t *testing.T) {
		store := new(MockDocumentStore)
		ingester := new(MockIngester)
		h := NewDocumentHandler(store, ingester, "/corpus")
		store.On("Get", mock.Anything, "gone").Return(nil, domain.ErrDocumentNotFound)

		w := httptest.NewRecorder()
		documentRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/documents/gone", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
		ingester.AssertNotCalled(t, "RemoveDocument", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestDocumentHandler_Rebuild(t *testing.T) {
	ingester := new(MockIngester)
	h := NewDocumentHandler(new(MockDocumentStore), ingester, "/corpus")

	ingester.On("Rebuild", mock.Anything, "/corpus").Return(&service.IndexResult{
		Outcomes: []domain.FileOutcome{
			{Filename: "a_organized.txt", Status: domain.FileStatusSuccess},
			{Filename: "b_organized.txt", Status: domain.FileStatusFailed, Error: "embedding generation failed"},
		},
		Indexed: 1,
		Failed:  1,
	}, nil)

	w := httptest.NewRecorder()
	documentRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/index/rebuild", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp RebuildResponse
	decodeData(t, w, &resp)
	assert.Equal(t, 1, resp.Indexed)
	assert.Equal(t, 1, resp.Failed)
	assert.Len(t, resp.Outcomes, 2)
}

func TestDocumentHandler_Rebuild_Failure(t *testing.T) {
	ingester := new(MockIngester)
	h := NewDocumentHandler(new(MockDocumentStore), ingester, "/corpus")

	ingester.On("Rebuild", mock.Anything, "/corpus").Return(nil, domain.Wrap(domain.ErrStoreFailed, errors.New("down")))

	w := httptest.NewRecorder()
	documentRouter(h).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/index/rebuild", nil))

	assert.Equal(t, http.StatusBadGateway, w.Code)
}
