//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/lexis/internal/api/handlers"
	"github.com/cloo-solutions/lexis/internal/domain"
	"github.com/cloo-solutions/lexis/internal/embedding"
	"github.com/cloo-solutions/lexis/internal/extract"
	"github.com/cloo-solutions/lexis/internal/repository"
	"github.com/cloo-solutions/lexis/internal/server"
	"github.com/cloo-solutions/lexis/internal/service"
	"github.com/cloo-solutions/lexis/internal/storage"
	"github.com/cloo-solutions/lexis/internal/testutil"
)

const (
	testDimensions   = 128
	testChunkSize    = 300
	testChunkOverlap = 60
	testBucket       = "test-documents"
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
	S3Client     *storage.S3Client
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.S3AccessKey,
		SecretAccessKey: testutil.S3SecretKey,
		Bucket:          testBucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, pool, s3Client, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
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

// BuildBinaries builds the lexis and lexisd binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "lexis-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"lexisd", "lexis"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// RunLexis runs the lexis client against the test server
func (e *E2ETestEnv) RunLexis(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "lexis"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("LEXIS_API_URL=%s", e.ServerURL),
		fmt.Sprintf("HOME=%s", workDir),
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// RunLexisd runs the admin CLI against the test database and bucket
func (e *E2ETestEnv) RunLexisd(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "lexisd"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		"LEXIS_BACKEND=postgres",
		"LEXIS_DATABASE_URL="+e.PostgresC.ConnectionString(),
		"LEXIS_S3_ENDPOINT="+e.RustFSC.Endpoint(),
		"LEXIS_S3_ACCESS_KEY_ID="+testutil.S3AccessKey,
		"LEXIS_S3_SECRET_ACCESS_KEY="+testutil.S3SecretKey,
		"LEXIS_S3_BUCKET="+testBucket,
		"LEXIS_EMBEDDING_PROVIDER=hashing",
		fmt.Sprintf("LEXIS_EMBEDDING_DIMENSIONS=%d", testDimensions),
		fmt.Sprintf("LEXIS_CHUNK_SIZE=%d", testChunkSize),
		fmt.Sprintf("LEXIS_CHUNK_OVERLAP=%d", testChunkOverlap),
		"LEXIS_OPENAI_API_KEY=",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int             `json:"-"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error,omitempty"`
	Code       string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	return e.doRequest("POST", path, body)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return e.send(req)
}

func (e *E2ETestEnv) send(req *http.Request) (*APIResponse, error) {
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := APIResponse{StatusCode: resp.StatusCode}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &apiResp); err != nil {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
	}
	if resp.StatusCode >= 400 {
		return &apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}
	return &apiResp, nil
}

// Upload posts files to /documents as multipart form data
func (e *E2ETestEnv) Upload(files map[string]string) (*APIResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, content := range files {
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			return nil, err
		}
		if _, err := io.WriteString(part, content); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest("POST", e.ServerURL+"/documents", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.send(req)
}

// Ask posts a question and returns the raw event stream
func (e *E2ETestEnv) Ask(conversationID, query string) (string, error) {
	body, _ := json.Marshal(map[string]string{"query": query})
	resp, err := e.HTTPClient.Post(e.ServerURL+"/conversations/"+conversationID+"/messages", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	stream, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, stream)
	}
	return string(stream), nil
}

// SHA256Sum calculates SHA256 hash of data
func SHA256Sum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// quotingGenerator answers with the opening words of the first context
// fragment and cites it.
type quotingGenerator struct{}

func (quotingGenerator) Stream(ctx context.Context, prompt domain.Prompt) (domain.TokenStream, error) {
	answer := "Nothing relevant."
	if i := strings.Index(prompt.System, "[Document 1 - Source: "); i >= 0 {
		fragment := prompt.System[i:]
		if nl := strings.Index(fragment, "\n"); nl >= 0 {
			fragment = fragment[nl+1:]
		}
		words := strings.Fields(fragment)
		if len(words) > 8 {
			words = words[:8]
		}
		answer = strings.Join(words, " ") + " [1]"
	}
	return &wordStream{words: strings.SplitAfter(answer, " ")}, nil
}

type wordStream struct {
	words []string
}

func (s *wordStream) Recv() (string, error) {
	if len(s.words) == 0 {
		return "", io.EOF
	}
	w := s.words[0]
	s.words = s.words[1:]
	return w, nil
}

func (s *wordStream) Close() error { return nil }

// startServer starts the HTTP server over Postgres, S3 and a hashing embedder
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, port int) (string, func()) {
	store := repository.NewStore(pool)
	embedder := embedding.NewHashing(testDimensions)

	ingestion := service.NewIngestionService(store, s3Client, extract.NewRegistry(), embedder, service.IngestionConfig{
		Settings: domain.IndexSettings{
			Metric:         domain.MetricCosine,
			EmbeddingModel: embedder.Model(),
			Dimensions:     testDimensions,
			ChunkSize:      testChunkSize,
			ChunkOverlap:   testChunkOverlap,
		},
	})
	if err := ingestion.EnsureSettings(context.Background()); err != nil {
		t.Fatalf("failed to save index settings: %v", err)
	}

	convs := service.NewConversationService(store)
	chat := service.NewChatService(store, embedder, quotingGenerator{}, convs, service.ChatConfig{
		TopK:              3,
		HistoryTurns:      4,
		GenerationTimeout: 30 * time.Second,
	})

	router := server.NewRouter(server.RouterConfig{
		HealthHandler:       handlers.NewHealthHandler(ingestion),
		DocumentHandler:     handlers.NewDocumentHandler(ingestion),
		SearchHandler:       handlers.NewSearchHandler(chat),
		ConversationHandler: handlers.NewConversationHandler(convs, chat),
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
