package tryon

// JobStatus is the remote inference job state as reported by the status
// endpoint, plus the two locally assigned terminal states.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusTimedOut   JobStatus = "timed_out"
)

// ParseJobStatus maps the API's status strings onto the known variants.
// Unknown values are treated as still-processing, so the poll loop keeps
// going until its budget runs out.
func ParseJobStatus(s string) JobStatus {
	switch s {
	case "queued", "starting", "pending", "in_queue":
		return StatusQueued
	case "processing", "running":
		return StatusProcessing
	case "completed":
		return StatusCompleted
	case "failed", "canceled":
		return StatusFailed
	default:
		return StatusProcessing
	}
}

// Terminal reports whether no further remote transitions can occur.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimedOut
}

// Snapshot is one observation of a remote job, taken by a single poll.
type Snapshot struct {
	Status       JobStatus
	RawStatus    string
	Progress     int
	OutputURLs   []string
	ErrorMessage string
}

// Event is one item in the progress stream relayed to the caller. The wire
// shape matches the SSE contract: progress-only ticks, progress+status
// updates, and exactly one terminal event carrying either a result image
// path or an error.
type Event struct {
	Progress    *int   `json:"progress,omitempty"`
	Status      string `json:"status,omitempty"`
	Error       string `json:"error,omitempty"`
	ResultImage string `json:"resultImage,omitempty"`

	// Terminal marks the last event of the stream. Not serialized.
	Terminal bool `json:"-"`
}

func progressEvent(p int) Event {
	return Event{Progress: &p}
}

func statusEvent(p int, status string) Event {
	return Event{Progress: &p, Status: status}
}

func failedEvent(msg string) Event {
	return Event{Error: msg, Status: "Failed", Terminal: true}
}

func completeEvent(resultPath string) Event {
	return Event{ResultImage: resultPath, Status: "Complete", Terminal: true}
}

// Request carries everything one try-on run needs. It is owned by a single
// orchestrator invocation and never persisted.
type Request struct {
	CustomerImage []byte
	ClothingImage []byte
	ClothingID    string
}
