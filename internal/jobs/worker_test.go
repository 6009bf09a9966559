package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/lexis/internal/domain"
	"github.com/cloo-solutions/lexis/internal/service"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockIngester is a mock implementation of Ingester
type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) IngestBatch(ctx context.Context, inputs []service.IngestInput) []service.IngestResult {
	args := m.Called(ctx, inputs)
	return args.Get(0).([]service.IngestResult)
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("transient"))

	worker := NewWorker("test", mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_RunsImmediately(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	called := make(chan struct{}, 1)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil).Run(func(mock.Arguments) {
		select {
		case called <- struct{}{}:
		default:
		}
	})

	worker := NewWorker("test", mockProcessor, time.Hour)
	go worker.Start(context.Background())

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("first pass did not run before the first tick")
	}
	worker.Stop()
}

func TestWorker_StopIsIdempotent(t *testing.T) {
	worker := NewWorker("test", new(MockJobProcessor), time.Hour)
	worker.Stop()
	worker.Stop()

	worker.Start(context.Background())
}

func writeInboxFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestInboxProcessor_EmptyInbox(t *testing.T) {
	dir := t.TempDir()
	ingester := new(MockIngester)

	p, err := NewInboxProcessor(dir, ingester, 0)
	require.NoError(t, err)

	require.NoError(t, p.ProcessJobs(context.Background()))
	ingester.AssertNotCalled(t, "IngestBatch", mock.Anything, mock.Anything)
	assert.DirExists(t, filepath.Join(dir, ProcessedDir))
	assert.DirExists(t, filepath.Join(dir, FailedDir))
}

func TestInboxProcessor_MovesFilesByOutcome(t *testing.T) {
	dir := t.TempDir()
	writeInboxFile(t, dir, "a.txt", "first document")
	writeInboxFile(t, dir, "b.txt", "second document")
	writeInboxFile(t, dir, "c.bin", "binary")
	writeInboxFile(t, dir, ".partial", "still uploading")

	ingester := new(MockIngester)
	ingester.On("IngestBatch", mock.Anything, mock.MatchedBy(func(inputs []service.IngestInput) bool {
		return len(inputs) == 3 &&
			inputs[0].FileName == "a.txt" && string(inputs[0].Content) == "first document" &&
			inputs[1].FileName == "b.txt" &&
			inputs[2].FileName == "c.bin"
	})).Return([]service.IngestResult{
		{FileName: "a.txt", Document: &domain.Document{ID: "a.txt", FragmentIDs: []string{"f1"}}},
		{FileName: "b.txt", Document: &domain.Document{ID: "b.txt"}, Duplicate: true},
		{FileName: "c.bin", Err: domain.ErrUnsupportedFormat},
	})

	p, err := NewInboxProcessor(dir, ingester, 0)
	require.NoError(t, err)

	err = p.ProcessJobs(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 3 inbox files failed")

	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "a.txt"))
	assert.FileExists(t, filepath.Join(dir, ProcessedDir, "b.txt"))
	assert.FileExists(t, filepath.Join(dir, FailedDir, "c.bin"))
	assert.FileExists(t, filepath.Join(dir, ".partial"))
	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))
	ingester.AssertExpectations(t)

	require.NoError(t, p.ProcessJobs(context.Background()))
	ingester.AssertNumberOfCalls(t, "IngestBatch", 1)
}

func TestInboxProcessor_OversizedFileFails(t *testing.T) {
	dir := t.TempDir()
	writeInboxFile(t, dir, "huge.txt", "0123456789")

	ingester := new(MockIngester)
	p, err := NewInboxProcessor(dir, ingester, 5)
	require.NoError(t, err)

	require.NoError(t, p.ProcessJobs(context.Background()))
	assert.FileExists(t, filepath.Join(dir, FailedDir, "huge.txt"))
	ingester.AssertNotCalled(t, "IngestBatch", mock.Anything, mock.Anything)
}

func TestInboxProcessor_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeInboxFile(t, dir, "a.txt", "first document")

	p, err := NewInboxProcessor(dir, new(MockIngester), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.ProcessJobs(ctx), context.Canceled)
	assert.FileExists(t, filepath.Join(dir, "a.txt"))
}
