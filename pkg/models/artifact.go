package models

// ExecStatus is the outcome of one sandboxed code execution
type ExecStatus string

const (
	// ExecStatusSuccess means the process exited 0 with no execution-error marker
	ExecStatusSuccess ExecStatus = "success"
	// ExecStatusError means the process exited nonzero or the code raised
	ExecStatusError ExecStatus = "error"
	// ExecStatusTimeout means the process was killed at the wall-clock limit
	ExecStatusTimeout ExecStatus = "timeout"
)

// IsValid checks if the execution status is valid
func (s ExecStatus) IsValid() bool {
	return s == ExecStatusSuccess || s == ExecStatusError || s == ExecStatusTimeout
}

// Artifact captures everything one code execution produced. Program
// failures are data here, not errors: the loop feeds them back to the
// LLM as tool results.
type Artifact struct {
	Status ExecStatus `json:"status"`
	Stdout string     `json:"stdout"`
	Stderr string     `json:"stderr,omitempty"`

	// result.png collected from the working directory, base64-encoded
	ImageBase64 string `json:"image_base64,omitempty"`
	HasImage    bool   `json:"has_image"`

	// result.json collected from the working directory
	Result    map[string]any `json:"result,omitempty"`
	HasResult bool           `json:"has_result"`
}
