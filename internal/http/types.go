package http

// AnswerRequest is the request body for POST /v1/pw_ai_answer and
// /v2/answer.
type AnswerRequest struct {
	Prompt string `json:"prompt"`
}

// VerifyRequest is the request body for POST /v1/verify.
type VerifyRequest struct {
	Query string `json:"query"`
}

// RetrieveRequest is the request body for POST /v1/retrieve.
type RetrieveRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// RetrievedChunk is one element of the POST /v1/retrieve response.
type RetrievedChunk struct {
	Text     string        `json:"text"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}

// ChunkMetadata identifies a chunk's article and its ranks before fusion.
type ChunkMetadata struct {
	ChunkID     string `json:"chunk_id"`
	ArticleKey  string `json:"article_key"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Ordinal     int    `json:"ordinal"`
	LexicalRank int    `json:"lexical_rank,omitempty"` // 0 when absent from the lexical list
	VectorRank  int    `json:"vector_rank,omitempty"`
}

// StatisticsResponse is the response body for POST /v1/statistics. Times
// are Unix seconds.
type StatisticsResponse struct {
	FileCount    int    `json:"file_count"`
	LastModified int64  `json:"last_modified"`
	LastIndexed  int64  `json:"last_indexed"`
	Chunks       int    `json:"chunks"`
	Version      uint64 `json:"version"`
}

// RefreshResponse is the response body for POST /v1/refresh.
type RefreshResponse struct {
	RunID   string `json:"run_id"`
	Pages   int    `json:"pages"`
	Skipped int    `json:"skipped"`
	Added   int    `json:"added"`
	Records int    `json:"records"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	IndexVersion uint64 `json:"index_version,omitempty"`
}

// ErrorResponse is the body of every error status.
type ErrorResponse struct {
	Error string `json:"error"`
}
