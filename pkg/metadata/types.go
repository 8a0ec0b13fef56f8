package metadata

import "time"

// Record is one catalog row describing a model instance.
type Record struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	Source      string    `json:"source,omitempty"`
	Model       string    `json:"model"`
	CanInput    bool      `json:"can_input"`
	CanOutput   bool      `json:"can_output"`
	CanUpdate   bool      `json:"can_update"`
	CreatedBy   string    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Filter narrows a catalog search. Zero fields match everything.
type Filter struct {
	// Model matches the variant name exactly.
	Model string
	// Tag matches records carrying the tag.
	Tag string
	// Text matches a substring of name, title, or description.
	Text string

	Limit  int
	Offset int
}
