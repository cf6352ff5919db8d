package domain

import "time"

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusSuccess    JobStatus = "success"
	JobStatusFailed     JobStatus = "failed"
)

// Terminal reports whether no further transition is permitted.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusFailed
}

// Valid reports whether s is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusSuccess, JobStatusFailed:
		return true
	}
	return false
}

var transitions = map[JobStatus][]JobStatus{
	JobStatusQueued:     {JobStatusProcessing, JobStatusFailed},
	JobStatusProcessing: {JobStatusSuccess, JobStatusFailed},
}

// CanTransition reports whether moving from -> to is a legal forward step.
// Submission failures go straight from queued to failed.
func CanTransition(from, to JobStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Predecessors returns the states from which to may be entered.
func Predecessors(to JobStatus) []JobStatus {
	var out []JobStatus
	for _, from := range []JobStatus{JobStatusQueued, JobStatusProcessing} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// Job tracks one image variation from admission to a terminal state.
// EnqueuedAt stays zero until its payload is in the queue.
type Job struct {
	ID            string
	WorkspaceID   string
	CreatorID     string
	BoardID       string
	Model         string
	Prompt        string
	InputRefs     []string
	Priority      int
	Cost          float64
	Status        JobStatus
	Provider      string
	ProviderTask  string
	ResultAssetID string
	ResultURL     string
	ErrorMessage  string
	EnqueuedAt    time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobPatch carries a partial update. Nil fields are left untouched.
// ExpectFrom guards the update: it only applies while the stored status is
// one of the listed states.
type JobPatch struct {
	Status        *JobStatus
	Provider      *string
	ProviderTask  *string
	ResultAssetID *string
	ResultURL     *string
	ErrorMessage  *string
	ExpectFrom    []JobStatus
}

// Apply mutates j in place. It reports false without touching j when the
// ExpectFrom guard does not hold.
func (p JobPatch) Apply(j *Job, now time.Time) bool {
	if len(p.ExpectFrom) > 0 {
		ok := false
		for _, s := range p.ExpectFrom {
			if j.Status == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if p.Status != nil {
		j.Status = *p.Status
	}
	if p.Provider != nil {
		j.Provider = *p.Provider
	}
	if p.ProviderTask != nil {
		j.ProviderTask = *p.ProviderTask
	}
	if p.ResultAssetID != nil {
		j.ResultAssetID = *p.ResultAssetID
	}
	if p.ResultURL != nil {
		j.ResultURL = *p.ResultURL
	}
	if p.ErrorMessage != nil {
		j.ErrorMessage = *p.ErrorMessage
	}
	j.UpdatedAt = now
	return true
}

// ProcessingPatch records a successful submission.
func ProcessingPatch(provider, task string) JobPatch {
	status := JobStatusProcessing
	return JobPatch{
		Status:       &status,
		Provider:     &provider,
		ProviderTask: &task,
		ExpectFrom:   Predecessors(JobStatusProcessing),
	}
}

// FailedPatch moves a non-terminal job to failed with msg.
func FailedPatch(msg string) JobPatch {
	status := JobStatusFailed
	return JobPatch{
		Status:       &status,
		ErrorMessage: &msg,
		ExpectFrom:   Predecessors(JobStatusFailed),
	}
}

// QueuedPayload is the slice of a Job a worker needs to run generation
// without reading the store.
type QueuedPayload struct {
	JobID       string    `json:"job_id"`
	WorkspaceID string    `json:"workspace_id"`
	Prompt      string    `json:"prompt"`
	Model       string    `json:"model"`
	InputURLs   []string  `json:"input_urls,omitempty"`
	Priority    int       `json:"priority"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// PayloadFor derives the queue payload for a freshly created job.
func PayloadFor(j Job, now time.Time) QueuedPayload {
	return QueuedPayload{
		JobID:       j.ID,
		WorkspaceID: j.WorkspaceID,
		Prompt:      j.Prompt,
		Model:       j.Model,
		InputURLs:   append([]string(nil), j.InputRefs...),
		Priority:    j.Priority,
		EnqueuedAt:  now,
	}
}
