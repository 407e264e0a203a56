//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/cloo-solutions/policyrag/internal/api/handlers"
	"github.com/cloo-solutions/policyrag/internal/domain"
	"github.com/cloo-solutions/policyrag/internal/repository"
	"github.com/cloo-solutions/policyrag/internal/server"
	"github.com/cloo-solutions/policyrag/internal/service"
	"github.com/cloo-solutions/policyrag/internal/storage"
	"github.com/cloo-solutions/policyrag/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	testAdminToken = "e2e-admin-token"
	testCollection = "e2e_policies"
	testBucket     = "policy-corpus"
	embeddingDims  = 256
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Sink       *storage.S3Sink
	OutputDir    string
	BinaryDir    string
	AdminToken   string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Sink, err := storage.NewS3Sink(ctx, storage.S3SinkConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSAccessKey,
		SecretAccessKey: testutil.RustFSAccessKey,
		Bucket:          testBucket,
		Prefix:          "corpus",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 sink: %v", err)
	}

	if err := s3Sink.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	outputDir := t.TempDir()
	serverURL, serverCloser := startServer(t, pool, s3Sink, outputDir, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Sink:       s3Sink,
		OutputDir:    outputDir,
		AdminToken:   testAdminToken,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// Reset empties the server's collection between subtests.
func (e *E2ETestEnv) Reset() {
	if err := testutil.DeleteCollection(e.Ctx, e.Pool, testCollection); err != nil {
		e.T.Fatalf("failed to reset collection: %v", err)
	}
}

// BuildBinaries builds the policyrag and policyragd binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "policyrag-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"policyragd", "policyrag"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// RunPolicyrag runs the policyrag CLI against the test server
func (e *E2ETestEnv) RunPolicyrag(workDir string, args ...string) (string, error) {
	return e.RunPolicyragWithInput(workDir, "", args...)
}

// RunPolicyragWithInput runs the policyrag CLI command with stdin input
func (e *E2ETestEnv) RunPolicyragWithInput(workDir string, input string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "policyrag"), args...)
	cmd.Dir = workDir
	if input != "" {
		cmd.Stdin = strings.NewReader(input)
	}
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("HOME=%s", workDir),
		fmt.Sprintf("POLICYRAG_ADMIN_TOKEN=%s", e.AdminToken),
		fmt.Sprintf("POLICYRAG_API_URL=%s", e.ServerURL),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// RunPolicyragd runs an offline policyragd command against the test database
func (e *E2ETestEnv) RunPolicyragd(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "policyragd"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"POLICYRAG_VECTOR_BACKEND=postgres",
		fmt.Sprintf("POLICYRAG_DATABASE_URL=%s", e.PostgresC.ConnectionString()),
		fmt.Sprintf("POLICYRAG_COLLECTION_NAME=%s", testCollection),
		fmt.Sprintf("POLICYRAG_OUTPUT_PATH=%s", e.OutputDir),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return &APIResponse{}, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// UploadDocument posts a document through the admin API and returns its id.
func (e *E2ETestEnv) UploadDocument(filename, text string) string {
	resp, err := e.Post("/documents", map[string]string{"filename": filename, "text": text}, e.AdminToken)
	if err != nil {
		e.T.Fatalf("failed to upload %s: %v", filename, err)
	}
	var doc struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &doc); err != nil {
		e.T.Fatalf("failed to parse upload response: %v", err)
	}
	return doc.ID
}

// wordEmbedder hashes lowercased words into a fixed-size unit vector, so texts
// sharing words land close together without calling a model.
type wordEmbedder struct{}

func (wordEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%embeddingDims]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// startServer starts the HTTP server wired the way policyragd serve wires it
func startServer(t *testing.T, pool *pgxpool.Pool, s3Sink *storage.S3Sink, outputDir string, port int) (string, func()) {
	index := service.NewVectorIndex(repository.NewPgCollection(pool, testCollection), wordEmbedder{}, service.VectorIndexConfig{
		MinSimilarityScore: 0.3,
		MaxCandidates:      service.DefaultMaxCandidates,
	})

	tables := domain.DefaultTables()
	organizer := service.NewDocumentOrganizer(
		service.NewTextNormalizer(tables),
		service.NewMetadataExtractor(service.NewCategorizer(tables)),
		storage.NewMirrorSink(storage.NewFSSink(outputDir), s3Sink),
	)
	ingestSvc := service.NewIngestService(index, organizer)

	orchestrator := service.NewQueryOrchestrator(index, service.DefaultOverrideRules(), service.OrchestratorConfig{
		MaxDocumentsPerQuery:    5,
		SimilarityCutoff:        0.2,
		EnableCategoryFiltering: true,
		EnableTypeFiltering:     true,
	})
	chatSvc := service.NewChatService(orchestrator, nil, service.ChatConfig{MaxContextLength: 4000})

	router := server.NewRouter(server.RouterConfig{
		AdminToken:      testAdminToken,
		ChatHandler:     handlers.NewChatHandler(chatSvc),
		SearchHandler:   handlers.NewSearchHandler(index, 20),
		DocumentHandler: handlers.NewDocumentHandler(index, ingestSvc, outputDir),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
