package client

// Document is a catalog entry as returned by the API.
type Document struct {
	ID          string   `json:"id"`
	FileName    string   `json:"file_name"`
	Format      string   `json:"format"`
	SizeBytes   int64    `json:"size_bytes"`
	SHA256      string   `json:"sha256"`
	Fragments   int      `json:"fragments"`
	FragmentIDs []string `json:"fragment_ids,omitempty"`
	IngestedAt  string   `json:"ingested_at"`
}

// IngestResult is the outcome of one uploaded file.
type IngestResult struct {
	FileName  string    `json:"file_name"`
	Document  *Document `json:"document,omitempty"`
	Duplicate bool      `json:"duplicate,omitempty"`
	Error     string    `json:"error,omitempty"`
	Code      string    `json:"code,omitempty"`
	Stage     string    `json:"stage,omitempty"`
}

// SearchResult is one retrieved fragment.
type SearchResult struct {
	FragmentID    string  `json:"fragment_id"`
	DocumentID    string  `json:"document_id"`
	SequenceIndex int     `json:"sequence_index"`
	StartOffset   int     `json:"start_offset"`
	EndOffset     int     `json:"end_offset"`
	Score         float32 `json:"score"`
	Content       string  `json:"content"`
}

// Source summarizes a retrieved document.
type Source struct {
	DocumentID string  `json:"document_id"`
	Score      float32 `json:"score"`
	Fragments  int     `json:"fragments"`
	Preview    string  `json:"preview"`
}

// SearchRequest represents the search API request.
type SearchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

// SearchResponse represents the search API response.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
	Sources []Source       `json:"sources"`
}

type Conversation struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt string     `json:"created_at"`
	UpdatedAt string     `json:"updated_at"`
	Messages  []*Message `json:"messages,omitempty"`
}

type Message struct {
	ID               string   `json:"id"`
	Seq              int      `json:"seq"`
	Role             string   `json:"role"`
	Content          string   `json:"content"`
	CitedFragmentIDs []string `json:"cited_fragment_ids,omitempty"`
	Status           string   `json:"status"`
	CreatedAt        string   `json:"created_at"`
}

type Citation struct {
	Index         int     `json:"index"`
	FragmentID    string  `json:"fragment_id"`
	DocumentID    string  `json:"document_id"`
	SequenceIndex int     `json:"sequence_index"`
	Score         float32 `json:"score"`
	Excerpt       string  `json:"excerpt"`
}

// AskRequest is the body of a question.
type AskRequest struct {
	Query string `json:"query"`
	K     int    `json:"k,omitempty"`
}

type tokenEvent struct {
	Token string `json:"token"`
}

type doneEvent struct {
	ConversationID string   `json:"conversation_id"`
	Message        *Message `json:"message"`
	Sources        []Source `json:"sources"`
}

type errorEvent struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Stage string `json:"stage,omitempty"`
}
