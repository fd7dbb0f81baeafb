package babbel

import "encoding/json"

type sessionRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type storyRequest struct {
	Title     string        `json:"title"`
	Text      string        `json:"text"`
	StartDate string        `json:"start_date"`
	EndDate   string        `json:"end_date"`
	Status    string        `json:"status"`
	Weekdays  int           `json:"weekdays"`
	Metadata  storyMetadata `json:"metadata"`
}

type storyMetadata struct {
	PostID int64 `json:"post_id"`
}

// storyResponse covers both the created-story body and the API's error
// envelope. The id arrives as a JSON number; it is carried as an opaque
// string everywhere else.
type storyResponse struct {
	ID    json.Number `json:"id"`
	Error string      `json:"error"`
}
