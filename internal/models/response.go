package models

import "time"

// ResponseMeta is request metadata captured with a submission.
type ResponseMeta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
	Referer   string `json:"referer,omitempty"`
}

// Response is one submission to a published form. Values are keyed by field id.
type Response struct {
	ID          string         `json:"id"`
	FormID      string         `json:"formId"`
	Values      map[string]any `json:"values"`
	Meta        ResponseMeta   `json:"meta"`
	SubmittedAt time.Time      `json:"submittedAt"`
}
