package domain

import "fmt"

// IngestStage is a state of the per-document ingestion state machine
type IngestStage string

const (
	StageReceived   IngestStage = "received"
	StageExtracted  IngestStage = "extracted"
	StageNormalized IngestStage = "normalized"
	StageChunked    IngestStage = "chunked"
	StageEmbedded   IngestStage = "embedded"
	StageIndexed    IngestStage = "indexed"
)

// StageError is the Failed(stage, reason) outcome of an ingestion.
// Stage is the stage that was being entered when the failure happened.
type StageError struct {
	DocumentID string
	Stage      IngestStage
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingest %s failed at %s: %v", e.DocumentID, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError
func NewStageError(documentID string, stage IngestStage, err error) *StageError {
	return &StageError{DocumentID: documentID, Stage: stage, Err: err}
}
