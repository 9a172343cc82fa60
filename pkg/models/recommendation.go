package models

// RecommendationQuery is the query string of the recommendation endpoint.
// All three parameters are required.
type RecommendationQuery struct {
	UserID       string `form:"user_id"`
	CategoryPath string `form:"category_path"`
	Model        string `form:"model"`
}

// RecommendationResponse is the body of a successful recommendation query.
// An empty list is returned as [].
type RecommendationResponse struct {
	ID              string  `json:"id"`
	Date            string  `json:"date"`
	UserID          int64   `json:"user_id"`
	Model           string  `json:"model"`
	Recommendations []int64 `json:"recommendations"`
}

// MessageResponse is the body of a rejected recommendation query. UserID and
// Model are only set once the query parameters were read.
type MessageResponse struct {
	ID      string `json:"id"`
	Date    string `json:"date"`
	UserID  *int64 `json:"user_id,omitempty"`
	Model   string `json:"model,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// DateLayout formats the Date of recommendation responses.
const DateLayout = "2006-01-02 15:04:05"
