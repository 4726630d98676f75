package search

// ResultKind identifies the kind of entity in a search result.
type ResultKind string

const (
	ResultComment ResultKind = "comment"
	ResultReply   ResultKind = "reply"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Kind        ResultKind `json:"kind"`
	ID          string     `json:"id"`
	DisplayName string     `json:"displayName"`
	Snippet     string     `json:"snippet"`
	CommentID   string     `json:"commentId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text       string
	FilterKind ResultKind // empty = both kinds
	Limit      int
	Offset     int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Record is the data we index for a comment or a reply.
type Record struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Content     string `json:"content"`
	DisplayName string `json:"displayName"`
	CommentID   string `json:"commentId"`
}
