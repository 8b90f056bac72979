package api

// Wire request/response shapes for the gateway's HTTP surface, per
// spec.md §6's endpoint table.

// NegotiateRequest is the POST /v1/negotiate body. AgentDID is accepted
// here only for forward-compatibility with unsigned callers during
// local development; authenticated handlers always use the verified
// DID from the signature middleware, never this field.
type NegotiateRequest struct {
	ItemID    string  `json:"item_id"`
	BidAmount float64 `json:"bid_amount"`
	Currency  string  `json:"currency"`
	AgentDID  string  `json:"agent_did"`
}

// SearchRequest is the POST /v1/search body.
type SearchRequest struct {
	Query         []float32 `json:"query"`
	Limit         int       `json:"limit"`
	MinSimilarity float64   `json:"min_similarity"`
}

// SearchResult is one entry in a SearchResponse.
type SearchResult struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	BasePrice        float64 `json:"base_price"`
	SimilarityScore  float64 `json:"similarity_score"`
	DescriptionSnippet string `json:"description_snippet,omitempty"`
}

// SearchResponse is the POST /v1/search response.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// SystemStatusResponse is the GET /v1/system/status response.
type SystemStatusResponse struct {
	Status           string  `json:"status"`
	CPUUsagePercent  float64 `json:"cpu_usage_percent"`
	MemoryUsageMB    float64 `json:"memory_usage_mb"`
	Timestamp        int64   `json:"timestamp"`
	Cached           bool    `json:"cached"`
}

// DealStatusResponse is the GET /v1/deals/{id} response.
type DealStatusResponse struct {
	Status              string         `json:"status"`
	Secret              string         `json:"secret,omitempty"`
	Proof               any            `json:"proof,omitempty"`
	PaymentInstructions any            `json:"payment_instructions,omitempty"`
}

// ErrorResponse is returned for all non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthzResponse is the GET /healthz response: always ok.
type HealthzResponse struct {
	Status string `json:"status"`
}

// ReadyzResponse is the GET /readyz response.
type ReadyzResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthResponse is the GET /health response.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp int64             `json:"timestamp"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
}
