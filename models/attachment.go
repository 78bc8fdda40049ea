package models

// AttachmentPayload is the body of one upload call to /api/adjunto.
type AttachmentPayload struct {
	EntityID string `json:"gEntidad"`
	Subject  string `json:"Asunto"`
	Filename string `json:"NombreArchivo"`
	Data     string `json:"Data"` // base64
}

// AttachmentStatus reports the outcome of one file in a failed batch.
type AttachmentStatus struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

const (
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
)
