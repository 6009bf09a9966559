package handlers

import (
	"time"

	"github.com/cloo-solutions/lexis/internal/api"
	"github.com/cloo-solutions/lexis/internal/domain"
	"github.com/cloo-solutions/lexis/internal/service"
)

const timeFormat = time.RFC3339

type DocumentResponse struct {
	ID          string   `json:"id"`
	FileName    string   `json:"file_name"`
	Format      string   `json:"format"`
	SizeBytes   int64    `json:"size_bytes"`
	SHA256      string   `json:"sha256"`
	Fragments   int      `json:"fragments"`
	FragmentIDs []string `json:"fragment_ids,omitempty"`
	IngestedAt  string   `json:"ingested_at"`
}

func documentToResponse(d *domain.Document, withFragments bool) *DocumentResponse {
	resp := &DocumentResponse{
		ID:         d.ID,
		FileName:   d.FileName,
		Format:     string(d.Format),
		SizeBytes:  d.SizeBytes,
		SHA256:     d.SHA256,
		Fragments:  len(d.FragmentIDs),
		IngestedAt: d.IngestedAt.UTC().Format(timeFormat),
	}
	if withFragments {
		resp.FragmentIDs = d.FragmentIDs
	}
	return resp
}

type IngestResultResponse struct {
	FileName  string            `json:"file_name"`
	Document  *DocumentResponse `json:"document,omitempty"`
	Duplicate bool              `json:"duplicate,omitempty"`
	Error     string            `json:"error,omitempty"`
	Code      string            `json:"code,omitempty"`
	Stage     string            `json:"stage,omitempty"`
}

func ingestResultsToResponse(results []service.IngestResult) []IngestResultResponse {
	out := make([]IngestResultResponse, 0, len(results))
	for _, r := range results {
		item := IngestResultResponse{FileName: r.FileName, Duplicate: r.Duplicate}
		if r.Document != nil {
			item.Document = documentToResponse(r.Document, false)
		}
		if r.Err != nil {
			body := api.ErrorBody(r.Err)
			item.Error, item.Code, item.Stage = body.Error, body.Code, body.Stage
		}
		out = append(out, item)
	}
	return out
}

type SearchResultResponse struct {
	FragmentID    string  `json:"fragment_id"`
	DocumentID    string  `json:"document_id"`
	SequenceIndex int     `json:"sequence_index"`
	StartOffset   int     `json:"start_offset"`
	EndOffset     int     `json:"end_offset"`
	Score         float32 `json:"score"`
	Content       string  `json:"content"`
}

func resultsToResponse(results []domain.ScoredFragment) []SearchResultResponse {
	out := make([]SearchResultResponse, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResultResponse{
			FragmentID:    r.Fragment.ID,
			DocumentID:    r.Fragment.DocumentID,
			SequenceIndex: r.Fragment.SequenceIndex,
			StartOffset:   r.Fragment.StartOffset,
			EndOffset:     r.Fragment.EndOffset,
			Score:         r.Score,
			Content:       r.Fragment.Content,
		})
	}
	return out
}

type SourceResponse struct {
	DocumentID string  `json:"document_id"`
	Score      float32 `json:"score"`
	Fragments  int     `json:"fragments"`
	Preview    string  `json:"preview"`
}

func sourcesToResponse(sources []service.Source) []SourceResponse {
	out := make([]SourceResponse, 0, len(sources))
	for _, s := range sources {
		out = append(out, SourceResponse{
			DocumentID: s.DocumentID,
			Score:      s.Score,
			Fragments:  s.Fragments,
			Preview:    s.Preview,
		})
	}
	return out
}

type ConversationResponse struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	CreatedAt string             `json:"created_at"`
	UpdatedAt string             `json:"updated_at"`
	Messages  []*MessageResponse `json:"messages,omitempty"`
}

func conversationToResponse(c *domain.Conversation) *ConversationResponse {
	return &ConversationResponse{
		ID:        c.ID,
		Title:     c.Title,
		CreatedAt: c.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt: c.UpdatedAt.UTC().Format(timeFormat),
	}
}

type MessageResponse struct {
	ID               string   `json:"id"`
	Seq              int      `json:"seq"`
	Role             string   `json:"role"`
	Content          string   `json:"content"`
	CitedFragmentIDs []string `json:"cited_fragment_ids,omitempty"`
	Status           string   `json:"status"`
	CreatedAt        string   `json:"created_at"`
}

func messageToResponse(m *domain.Message) *MessageResponse {
	return &MessageResponse{
		ID:               m.ID,
		Seq:              m.Seq,
		Role:             string(m.Role),
		Content:          m.Content,
		CitedFragmentIDs: m.CitedFragmentIDs,
		Status:           string(m.Status),
		CreatedAt:        m.CreatedAt.UTC().Format(timeFormat),
	}
}

type CitationResponse struct {
	Index         int     `json:"index"`
	FragmentID    string  `json:"fragment_id"`
	DocumentID    string  `json:"document_id"`
	SequenceIndex int     `json:"sequence_index"`
	Score         float32 `json:"score"`
	Excerpt       string  `json:"excerpt"`
}

func citationToResponse(c *service.Citation) *CitationResponse {
	return &CitationResponse{
		Index:         c.Index,
		FragmentID:    c.FragmentID,
		DocumentID:    c.DocumentID,
		SequenceIndex: c.SequenceIndex,
		Score:         c.Score,
		Excerpt:       c.Excerpt,
	}
}
