package models

import "time"

// Credential is the static login for the CRM API.
type Credential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// String keeps the password out of logs.
func (c Credential) String() string {
	return "Credential{Username: " + c.Username + ", Password: ********}"
}

type ErrorResponse struct {
	Message string      `json:"message"`
	Error   interface{} `json:"error,omitempty"`
}

// AttachmentRecord is one ledger row per uploaded file.
type AttachmentRecord struct {
	CaseID    string    `json:"case_id"`
	Subject   string    `json:"subject"`
	Filename  string    `json:"filename"`
	Digest    string    `json:"digest"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
