package models

import "time"

// QueryRoute is the dispatch target for a natural-language query
type QueryRoute string

const (
	RouteStructured QueryRoute = "structured"
	RouteRetrieval  QueryRoute = "retrieval"
)

// ClassificationSource records which classifier produced the route
type ClassificationSource string

const (
	SourceLLM             ClassificationSource = "llm"
	SourceKeywordFallback ClassificationSource = "keyword-fallback"
)

// QueryClassification is the ephemeral routing decision for one query
type QueryClassification struct {
	Query  string               `json:"query"`
	Route  QueryRoute           `json:"route"`
	Source ClassificationSource `json:"source"`
}

// QueryAnswer is the chat result handed back to the caller
type QueryAnswer struct {
	RepositoryID string     `json:"repository_id"`
	Query        string     `json:"query"`
	Response     string     `json:"response"`
	Route        QueryRoute `json:"route"`
	Cached       bool       `json:"cached"`
	Degraded     bool       `json:"degraded"`
	Timestamp    time.Time  `json:"timestamp"`
}
