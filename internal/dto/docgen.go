package dto

// GenerateDocumentPayload is the payload of a generate_document job.
// Fields maps template field names to their values; empty values are
// skipped during filling.
type GenerateDocumentPayload struct {
	CaseID       string            `json:"case_id" validate:"required"`
	TemplateID   string            `json:"template_id" validate:"required"`
	DocumentType string            `json:"document_type"`
	Fields       map[string]string `json:"fields"`
	Recipient    string            `json:"recipient,omitempty"`
}

// FillResultDTO is the per-field outcome of a fill pass.
type FillResultDTO struct {
	Filled  int `json:"filled"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// GenerateDocumentResult is stored as the job result. Upload fields stay
// null when the best-effort backup failed.
type GenerateDocumentResult struct {
	DocumentPath string        `json:"document_path"`
	SizeBytes    int           `json:"size_bytes"`
	Fill         FillResultDTO `json:"fill"`
	StoredPath   string        `json:"stored_path,omitempty"`
	SharedLink   string        `json:"shared_link,omitempty"`
	UploadError  string        `json:"upload_error,omitempty"`
}
