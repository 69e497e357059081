package model

// CandidateMessage is a lightweight message preview produced by the candidate
// selector. Transient: never persisted, never mutated.
type CandidateMessage struct {
	MessageID           string   `json:"message_id"`
	Subject             string   `json:"subject"`
	From                string   `json:"from"`
	Date                string   `json:"date"`
	Snippet             string   `json:"snippet"`
	HasAttachment       bool     `json:"has_attachment"`
	AttachmentFilenames []string `json:"attachment_filenames"`
}
