package models

// These structs define the JSON payloads exchanged between the Cloud
// Workflow, the stage functions and the stage-completion events.

// StageName identifies one unit of pipeline work.
type StageName string

const (
	StageExtractText     StageName = "extract_text"
	StageConvertToCat    StageName = "convert_to_cat"
	StageFormatNarrative StageName = "format_narrative"
	StageGeneratePDF     StageName = "generate_pdf"
)

// StageTask asks a worker to run one stage for one project.
type StageTask struct {
	ProjectID   string    `json:"projectId"`
	Stage       StageName `json:"stage"`
	ExecutionID string    `json:"executionId,omitempty"`
}

// StageRequest is the input for every stage function.
type StageRequest struct {
	ProjectID   string `json:"projectId"`
	ExecutionID string `json:"executionId"`
}

// StageResponse is the output of every stage function.
type StageResponse struct {
	ProjectID string `json:"projectId"`
	Status    Status `json:"status"`
}

// StageCompleted is the data of a stage-completion cloudevent.
type StageCompleted struct {
	ProjectID string    `json:"projectId"`
	Stage     StageName `json:"stage"`
	Status    Status    `json:"status"`
}

// RegenerateRequest is the input for the regenerate-pdf function.
type RegenerateRequest struct {
	ProjectID string `json:"projectId"`
}

// ResumeRequest is the input for the resume-project function.
type ResumeRequest struct {
	ProjectID string `json:"projectId"`
}

// GCSEvent is the subset of a storage object-finalized event we consume.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
	Size   string `json:"size"`
}
