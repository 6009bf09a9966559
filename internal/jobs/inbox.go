package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cloo-solutions/lexis/internal/service"
)

const (
	// ProcessedDir receives inbox files that were ingested or were duplicates.
	ProcessedDir = "processed"
	// FailedDir receives inbox files whose ingestion failed.
	FailedDir = "failed"
)

// Ingester ingests a batch of files.
type Ingester interface {
	IngestBatch(ctx context.Context, inputs []service.IngestInput) []service.IngestResult
}

// InboxProcessor ingests files dropped into a directory. Each pass picks up
// the regular files at the top level of the inbox and moves them aside once
// handled, so a file is never ingested twice by the same inbox.
type InboxProcessor struct {
	dir         string
	ingester    Ingester
	maxFileSize int64
	logger      *zap.Logger
}

// NewInboxProcessor creates a new InboxProcessor instance
func NewInboxProcessor(dir string, ingester Ingester, maxFileSize int64) (*InboxProcessor, error) {
	for _, sub := range []string{ProcessedDir, FailedDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create inbox directory: %w", err)
		}
	}
	return &InboxProcessor{
		dir:         dir,
		ingester:    ingester,
		maxFileSize: maxFileSize,
		logger:      zap.L().With(zap.String("service", "inbox"), zap.String("dir", dir)),
	}, nil
}

// ProcessJobs ingests the files currently waiting in the inbox.
func (p *InboxProcessor) ProcessJobs(ctx context.Context) error {
	names, err := p.pending()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return nil
	}

	var inputs []service.IngestInput
	var accepted []string
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(p.dir, name)
		info, err := os.Stat(path)
		if err != nil {
			p.logger.Warn("cannot stat inbox file", zap.String("file", name), zap.Error(err))
			continue
		}
		if p.maxFileSize > 0 && info.Size() > p.maxFileSize {
			p.logger.Warn("inbox file too large", zap.String("file", name), zap.Int64("size", info.Size()))
			p.move(name, FailedDir)
			continue
		}
		content, err := os.ReadFile(path)
		if err != nil {
			p.logger.Warn("cannot read inbox file", zap.String("file", name), zap.Error(err))
			continue
		}
		inputs = append(inputs, service.IngestInput{FileName: name, Content: content})
		accepted = append(accepted, name)
	}
	if len(inputs) == 0 {
		return nil
	}

	results := p.ingester.IngestBatch(ctx, inputs)
	var failed int
	for i, res := range results {
		name := accepted[i]
		switch {
		case res.Err != nil:
			failed++
			p.logger.Warn("inbox file rejected", zap.String("file", name), zap.Error(res.Err))
			p.move(name, FailedDir)
		case res.Duplicate:
			p.logger.Info("inbox file already indexed", zap.String("file", name))
			p.move(name, ProcessedDir)
		default:
			p.logger.Info("inbox file ingested",
				zap.String("file", name),
				zap.String("document_id", res.Document.ID),
				zap.Int("fragments", len(res.Document.FragmentIDs)),
			)
			p.move(name, ProcessedDir)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d inbox files failed", failed, len(results))
	}
	return nil
}

// pending lists regular, non-hidden files in the inbox in name order.
func (p *InboxProcessor) pending() ([]string, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read inbox: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (p *InboxProcessor) move(name, sub string) {
	src := filepath.Join(p.dir, name)
	if err := os.Rename(src, filepath.Join(p.dir, sub, name)); err != nil {
		p.logger.Error("failed to move inbox file", zap.String("file", name), zap.String("to", sub), zap.Error(err))
	}
}
