package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/cloo-solutions/lexis/internal/domain"
	"github.com/cloo-solutions/lexis/internal/telemetry"
)

const (
	// DefaultEmbeddingMaxRetries bounds retries of a transient embedding failure.
	DefaultEmbeddingMaxRetries = 3
	// DefaultMaxFileSizeBytes is the largest accepted upload.
	DefaultMaxFileSizeBytes = 10 << 20

	blobKeyPrefix = "documents"
)

// IngestionConfig is the immutable configuration of the ingestion pipeline.
type IngestionConfig struct {
	Settings             domain.IndexSettings
	MaxFileSizeBytes     int64
	EmbeddingMaxRetries  int
	EmbeddingTimeout     time.Duration
	RetryInitialInterval time.Duration
}

// Chunk returns the chunker configuration carried by the index settings.
func (c IngestionConfig) Chunk() ChunkConfig {
	return ChunkConfig{Size: c.Settings.ChunkSize, Overlap: c.Settings.ChunkOverlap}
}

// IngestInput is one uploaded file. Format is derived from FileName when empty.
type IngestInput struct {
	FileName string
	Content  []byte
	Format   domain.Format
}

// IngestResult reports the outcome of one file of a batch.
type IngestResult struct {
	FileName  string
	Document  *domain.Document
	Duplicate bool
	Err       error
}

// VerifyReport compares the catalog with the vector index.
type VerifyReport struct {
	Documents int
	Fragments int
	// Orphans are indexed fragments no document owns.
	Orphans []string
	// Missing are fragments a document owns that the index lacks.
	Missing []string
}

// Consistent reports whether index and catalog agree.
func (r *VerifyReport) Consistent() bool {
	return len(r.Orphans) == 0 && len(r.Missing) == 0
}

// IndexStats summarizes the corpus.
type IndexStats struct {
	Documents int
	Fragments int
	Settings  *domain.IndexSettings
}

// IngestionService turns uploaded files into indexed fragments and keeps the
// catalog and the vector index in step.
type IngestionService struct {
	store     Store
	blobs     BlobStore
	extractor TextExtractor
	embedder  Embedder
	cfg       IngestionConfig
	ids       IDGenerator
	now       func() time.Time
	locks     *keyedMutex
	// content serializes ingestions of identical bytes under different names.
	content *keyedMutex
	// corpus is held shared by per-document mutations and exclusively by
	// Clear and Rebuild, which rewrite every document at once.
	corpus sync.RWMutex
	logger *zap.Logger
}

// NewIngestionService creates a new IngestionService instance
func NewIngestionService(store Store, blobs BlobStore, extractor TextExtractor, embedder Embedder, cfg IngestionConfig) *IngestionService {
	if cfg.MaxFileSizeBytes <= 0 {
		cfg.MaxFileSizeBytes = DefaultMaxFileSizeBytes
	}
	if cfg.EmbeddingMaxRetries < 0 {
		cfg.EmbeddingMaxRetries = 0
	}
	if cfg.RetryInitialInterval <= 0 {
		cfg.RetryInitialInterval = 500 * time.Millisecond
	}
	return &IngestionService{
		store:     store,
		blobs:     blobs,
		extractor: extractor,
		embedder:  embedder,
		cfg:       cfg,
		ids:       randomIDs{},
		now:       time.Now,
		locks:     newKeyedMutex(),
		content:   newKeyedMutex(),
		logger:    zap.L().With(zap.String("service", "ingestion")),
	}
}

// NewIngestionServiceWithIDs uses ids in place of random UUIDs
func NewIngestionServiceWithIDs(store Store, blobs BlobStore, extractor TextExtractor, embedder Embedder, cfg IngestionConfig, ids IDGenerator) *IngestionService {
	s := NewIngestionService(store, blobs, extractor, embedder, cfg)
	s.ids = ids
	return s
}

// EnsureSettings records the configured index settings on first open and
// fails with domain.ErrSettingsMismatch when the stored ones differ.
func (s *IngestionService) EnsureSettings(ctx context.Context) error {
	if err := domain.ValidateIndexSettings(s.cfg.Settings); err != nil {
		return domain.ErrMissingRequiredField.Wrap(err)
	}
	if s.embedder.Dimensions() != s.cfg.Settings.Dimensions {
		return domain.ErrSettingsMismatch.Wrap(fmt.Errorf(
			"embedder produces %d dimensions, index expects %d", s.embedder.Dimensions(), s.cfg.Settings.Dimensions))
	}

	return s.store.WithTx(ctx, func(repos TxRepositories) error {
		stored, err := repos.Settings().Get(ctx)
		if err != nil {
			return err
		}
		if stored == nil {
			settings := s.cfg.Settings
			settings.CreatedAt = s.now().UTC()
			s.logger.Info("creating index",
				zap.String("model", settings.EmbeddingModel),
				zap.Int("dimensions", settings.Dimensions))
			return repos.Settings().Save(ctx, settings)
		}
		return domain.CheckSettings(*stored, s.cfg.Settings)
	})
}

// Ingest runs one file through extract, normalize, chunk, embed and index.
// Failures are *domain.StageError values naming the stage that failed; nothing
// of the new version is visible after a failure. Content identical to an
// already ingested document returns that document unchanged.
func (s *IngestionService) Ingest(ctx context.Context, input IngestInput) (*domain.Document, error) {
	doc, _, err := s.ingest(ctx, input, false)
	return doc, err
}

// IngestBatch ingests files one by one; a failing file does not stop the rest.
func (s *IngestionService) IngestBatch(ctx context.Context, inputs []IngestInput) []IngestResult {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.IngestBatch", telemetry.SpanAttributes{
		Operation: "ingest_batch",
		Count:     len(inputs),
	})
	defer span.End()

	results := make([]IngestResult, 0, len(inputs))
	for _, in := range inputs {
		doc, dup, err := s.ingest(ctx, in, false)
		results = append(results, IngestResult{FileName: in.FileName, Document: doc, Duplicate: dup, Err: err})
	}
	return results
}

func (s *IngestionService) ingest(ctx context.Context, input IngestInput, force bool) (*domain.Document, bool, error) {
	docID := domain.DocumentIDFromFileName(input.FileName)
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Ingest", telemetry.SpanAttributes{
		DocumentID: docID,
		Operation:  "ingest",
	})
	defer span.End()

	fail := func(stage domain.IngestStage, err error) (*domain.Document, bool, error) {
		s.logger.Warn("ingestion failed",
			zap.String("document_id", docID),
			zap.String("stage", string(stage)),
			zap.Error(err))
		span.SetError(err)
		return nil, false, domain.NewStageError(docID, stage, err)
	}

	// received
	if !domain.IsSafeFileName(input.FileName) {
		return fail(domain.StageReceived, domain.ErrUnsafeFileName)
	}
	if docID == "" {
		return fail(domain.StageReceived, domain.ErrMissingRequiredField.Wrap(errors.New("file name has no usable characters")))
	}
	if int64(len(input.Content)) > s.cfg.MaxFileSizeBytes {
		return fail(domain.StageReceived, domain.ErrFileTooLarge)
	}
	format := input.Format
	if format == "" {
		f, err := domain.FormatFromFileName(input.FileName)
		if err != nil {
			return fail(domain.StageReceived, err)
		}
		format = f
	}
	if !domain.IsValidFormat(format) {
		return fail(domain.StageReceived, domain.ErrUnsupportedFormat)
	}

	s.corpus.RLock()
	defer s.corpus.RUnlock()
	unlock := s.locks.Lock(docID)
	defer unlock()

	sum := sha256.Sum256(input.Content)
	hash := hex.EncodeToString(sum[:])
	unlockContent := s.content.Lock(hash)
	defer unlockContent()

	previous, err := s.store.Documents().GetByID(ctx, docID)
	if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		return fail(domain.StageReceived, err)
	}
	if !force {
		dup, err := s.store.Documents().GetBySHA256(ctx, hash)
		if err == nil {
			s.logger.Info("duplicate content, skipping",
				zap.String("document_id", docID),
				zap.String("existing_document_id", dup.ID))
			return dup, true, nil
		}
		if !errors.Is(err, domain.ErrDocumentNotFound) {
			return fail(domain.StageReceived, err)
		}
	}

	// extracted
	raw, err := s.extractor.Extract(input.Content, format)
	if err != nil {
		return fail(domain.StageExtracted, err)
	}

	// normalized
	text := Normalize(raw)
	if err := ValidateNormalized(text); err != nil {
		return fail(domain.StageNormalized, err)
	}

	// chunked
	spans, err := Chunk(text, s.cfg.Chunk())
	if err != nil {
		return fail(domain.StageChunked, err)
	}
	telemetry.AddBreadcrumb(ctx, "ingest", fmt.Sprintf("%s: %d fragments", docID, len(spans)))

	// embedded
	texts := make([]string, len(spans))
	for i, sp := range spans {
		texts[i] = sp.Text
	}
	vectors, err := s.embedWithRetry(ctx, texts)
	if err != nil {
		return fail(domain.StageEmbedded, err)
	}

	now := s.now().UTC()
	fragments := make([]domain.Fragment, len(spans))
	fragmentIDs := make([]string, len(spans))
	for i, sp := range spans {
		f := domain.Fragment{
			ID:            s.ids.NewString(),
			DocumentID:    docID,
			SequenceIndex: i,
			Content:       sp.Text,
			StartOffset:   sp.Start,
			EndOffset:     sp.End,
			Embedding:     vectors[i],
			CreatedAt:     now,
		}
		if err := domain.ValidateFragment(&f, s.cfg.Settings.Dimensions); err != nil {
			return fail(domain.StageEmbedded, domain.ErrEmbeddingUnavailable.Wrap(err))
		}
		fragments[i] = f
		fragmentIDs[i] = f.ID
	}

	// indexed
	storageKey := BlobKey(docID, hash)
	if err := s.blobs.Put(ctx, storageKey, input.Content, contentTypeFor(format)); err != nil {
		return fail(domain.StageIndexed, domain.ErrIndexWriteFailed.Wrap(err))
	}

	doc := domain.NewDocument(docID, input.FileName, format, int64(len(input.Content)), hash, storageKey, fragmentIDs, now)
	if err := domain.ValidateDocument(doc); err != nil {
		s.discardBlob(ctx, storageKey, previous)
		return fail(domain.StageIndexed, domain.ErrIndexWriteFailed.Wrap(err))
	}

	err = s.store.WithTx(ctx, func(repos TxRepositories) error {
		if _, err := repos.Fragments().DeleteByDocument(ctx, docID); err != nil {
			return err
		}
		if err := repos.Fragments().Upsert(ctx, fragments); err != nil {
			return err
		}
		return repos.Documents().Upsert(ctx, doc)
	})
	if err != nil {
		s.discardBlob(ctx, storageKey, previous)
		return fail(domain.StageIndexed, domain.ErrIndexWriteFailed.Wrap(err))
	}

	if previous != nil && previous.StorageKey != storageKey {
		s.deleteBlob(ctx, previous.StorageKey)
	}

	s.logger.Info("document indexed",
		zap.String("document_id", docID),
		zap.String("format", string(format)),
		zap.Int("fragments", len(fragments)),
		zap.Bool("replaced", previous != nil))
	return doc, false, nil
}

// discardBlob removes a blob written for a version that never became visible,
// unless the previous version still points at it.
func (s *IngestionService) discardBlob(ctx context.Context, key string, previous *domain.Document) {
	if previous != nil && previous.StorageKey == key {
		return
	}
	s.deleteBlob(ctx, key)
}

func (s *IngestionService) deleteBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete stored content", zap.String("key", key), zap.Error(err))
	}
}

// embedWithRetry retries domain.ErrEmbeddingUnavailable with exponential
// backoff. Any other failure is permanent.
func (s *IngestionService) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	operation := func() error {
		attemptCtx := ctx
		if s.cfg.EmbeddingTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, s.cfg.EmbeddingTimeout)
			defer cancel()
		}

		out, err := s.embedder.Embed(attemptCtx, texts)
		if err != nil {
			if errors.Is(err, domain.ErrEmbeddingUnavailable) {
				s.logger.Debug("embedding attempt failed", zap.Error(err))
				return err
			}
			return backoff.Permanent(domain.ErrEmbeddingUnavailable.Wrap(err))
		}
		if len(out) != len(texts) {
			return backoff.Permanent(domain.ErrEmbeddingUnavailable.Wrap(
				fmt.Errorf("expected %d vectors, got %d", len(texts), len(out))))
		}
		vectors = out
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.RetryInitialInterval
	policy.MaxElapsedTime = 0

	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(s.cfg.EmbeddingMaxRetries)), ctx))
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
			err = domain.ErrEmbeddingUnavailable.Wrap(err)
		}
		return nil, err
	}
	return vectors, nil
}

// Get returns a document from the catalog.
func (s *IngestionService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.store.Documents().GetByID(ctx, documentID)
}

// List returns all documents ordered by ID.
func (s *IngestionService) List(ctx context.Context) ([]*domain.Document, error) {
	return s.store.Documents().List(ctx)
}

// Remove deletes a document, its index entries and its stored content.
// Removing an unknown document is not an error.
func (s *IngestionService) Remove(ctx context.Context, documentID string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Remove", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "remove",
	})
	defer span.End()

	s.corpus.RLock()
	defer s.corpus.RUnlock()
	unlock := s.locks.Lock(documentID)
	defer unlock()

	doc, err := s.store.Documents().GetByID(ctx, documentID)
	if errors.Is(err, domain.ErrDocumentNotFound) {
		return false, nil
	}
	if err != nil {
		span.SetError(err)
		return false, err
	}

	var purged int
	err = s.store.WithTx(ctx, func(repos TxRepositories) error {
		n, err := repos.Fragments().DeleteByDocument(ctx, documentID)
		if err != nil {
			return err
		}
		purged = n
		_, err = repos.Documents().Delete(ctx, documentID)
		return err
	})
	if err != nil {
		span.SetError(err)
		return false, domain.ErrIndexWriteFailed.Wrap(err)
	}

	s.deleteBlob(ctx, doc.StorageKey)
	s.logger.Info("document removed", zap.String("document_id", documentID), zap.Int("fragments", purged))
	return true, nil
}

// Reindex re-ingests every document from its stored raw bytes.
func (s *IngestionService) Reindex(ctx context.Context) ([]IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Reindex", telemetry.SpanAttributes{Operation: "reindex"})
	defer span.End()

	docs, err := s.store.Documents().List(ctx)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	results := make([]IngestResult, 0, len(docs))
	for _, d := range docs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		content, err := s.blobs.Get(ctx, d.StorageKey)
		if err != nil {
			results = append(results, IngestResult{
				FileName: d.FileName,
				Err:      domain.NewStageError(d.ID, domain.StageReceived, err),
			})
			continue
		}
		doc, _, err := s.ingest(ctx, IngestInput{FileName: d.FileName, Content: content, Format: d.Format}, true)
		results = append(results, IngestResult{FileName: d.FileName, Document: doc, Err: err})
	}
	return results, nil
}

// Rebuild replaces the stored index settings with the configured ones, drops
// every index entry and re-ingests all documents. It is the only way past a
// settings mismatch.
func (s *IngestionService) Rebuild(ctx context.Context) ([]IngestResult, error) {
	if err := domain.ValidateIndexSettings(s.cfg.Settings); err != nil {
		return nil, domain.ErrMissingRequiredField.Wrap(err)
	}

	docs, err := s.resetIndex(ctx)
	if err != nil {
		return nil, err
	}

	s.logger.Info("index reset, re-ingesting", zap.Int("documents", docs))
	return s.Reindex(ctx)
}

// resetIndex empties every document and the index and saves the configured
// settings, with per-document mutations held off.
func (s *IngestionService) resetIndex(ctx context.Context) (int, error) {
	s.corpus.Lock()
	defer s.corpus.Unlock()

	var count int
	err := s.store.WithTx(ctx, func(repos TxRepositories) error {
		docs, err := repos.Documents().List(ctx)
		if err != nil {
			return err
		}
		count = len(docs)
		if err := repos.Fragments().Clear(ctx); err != nil {
			return err
		}
		for _, d := range docs {
			emptied := *d
			emptied.FragmentIDs = []string{}
			if err := repos.Documents().Upsert(ctx, &emptied); err != nil {
				return err
			}
		}
		settings := s.cfg.Settings
		settings.CreatedAt = s.now().UTC()
		return repos.Settings().Save(ctx, settings)
	})
	if err != nil {
		return 0, domain.ErrIndexWriteFailed.Wrap(err)
	}
	return count, nil
}

// Clear removes every document, index entry and stored blob.
func (s *IngestionService) Clear(ctx context.Context) (int, error) {
	s.corpus.Lock()
	defer s.corpus.Unlock()

	var docs []*domain.Document
	err := s.store.WithTx(ctx, func(repos TxRepositories) error {
		var err error
		if docs, err = repos.Documents().List(ctx); err != nil {
			return err
		}
		if err := repos.Fragments().Clear(ctx); err != nil {
			return err
		}
		for _, d := range docs {
			if _, err := repos.Documents().Delete(ctx, d.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, domain.ErrIndexWriteFailed.Wrap(err)
	}

	for _, d := range docs {
		s.deleteBlob(ctx, d.StorageKey)
	}
	s.logger.Info("corpus cleared", zap.Int("documents", len(docs)))
	return len(docs), nil
}

// Verify reports drift between the fragment IDs of the catalog and the index.
func (s *IngestionService) Verify(ctx context.Context) (*VerifyReport, error) {
	docs, err := s.store.Documents().List(ctx)
	if err != nil {
		return nil, err
	}
	indexed, err := s.store.Fragments().FragmentIDs(ctx)
	if err != nil {
		return nil, err
	}

	owned := make(map[string]struct{})
	for _, d := range docs {
		for _, id := range d.FragmentIDs {
			owned[id] = struct{}{}
		}
	}
	inIndex := make(map[string]struct{}, len(indexed))
	for _, id := range indexed {
		inIndex[id] = struct{}{}
	}

	report := &VerifyReport{Documents: len(docs), Fragments: len(indexed)}
	for id := range inIndex {
		if _, ok := owned[id]; !ok {
			report.Orphans = append(report.Orphans, id)
		}
	}
	for id := range owned {
		if _, ok := inIndex[id]; !ok {
			report.Missing = append(report.Missing, id)
		}
	}
	sort.Strings(report.Orphans)
	sort.Strings(report.Missing)
	return report, nil
}

// Stats returns document and fragment counts plus the stored settings.
func (s *IngestionService) Stats(ctx context.Context) (*IndexStats, error) {
	docs, err := s.store.Documents().Count(ctx)
	if err != nil {
		return nil, err
	}
	frags, err := s.store.Fragments().Count(ctx)
	if err != nil {
		return nil, err
	}
	settings, err := s.store.Settings().Get(ctx)
	if err != nil {
		return nil, err
	}
	return &IndexStats{Documents: docs, Fragments: frags, Settings: settings}, nil
}

// BlobKey is the content-addressed storage key of a document version.
func BlobKey(documentID, sha256Hex string) string {
	return fmt.Sprintf("%s/%s/%s", blobKeyPrefix, documentID, sha256Hex)
}

func contentTypeFor(f domain.Format) string {
	switch f {
	case domain.FormatTabular:
		return "text/csv"
	case domain.FormatMarkup:
		return "text/html"
	default:
		return "text/plain"
	}
}
