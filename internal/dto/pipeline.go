package dto

import "encoding/json"

// NormalizeCasePayload is the payload of a normalize_case job.
type NormalizeCasePayload struct {
	CaseID            string          `json:"case_id" validate:"required"`
	Submission        json.RawMessage `json:"submission"`
	NotifyRecipient   string          `json:"notify_recipient,omitempty"`
	ContinueOnFailure bool            `json:"continue_on_failure"`
}

// NormalizeCaseResult is stored as the job result. Continued is set when
// the external call failed but the invoker was configured to carry on.
type NormalizeCaseResult struct {
	CaseID    string          `json:"case_id"`
	Continued bool            `json:"continued,omitempty"`
	Error     string          `json:"error,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
}
