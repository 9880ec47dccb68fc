package config

// Registered job types. Enqueue rejects anything else.
var AllowedJobTypes = []string{
	"generate_document",
	"normalize_case",
	"generate_and_normalize",
}

// Status-cache namespaces. Namespacing keeps unrelated features that share
// a job-id space from colliding.
const (
	NamespaceDocgen   = "docgen"
	NamespacePipeline = "pipeline"
)

// Snapshot statuses as seen by streaming clients.
const (
	SnapshotQueued     = "queued"
	SnapshotProcessing = "processing"
	SnapshotSuccess    = "success"
	SnapshotFailed     = "failed"
)
