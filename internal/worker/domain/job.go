package domain

// Job statuses as exposed by the status API. Stored verbatim in the jobs table.
const (
	JobStatusWaiting   = "waiting"
	JobStatusActive    = "active"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusDelayed   = "delayed"
)

// Job types routed to the two queues.
const (
	JobTypeGroupCreation  = "group-creation"
	JobTypePostScheduling = "post-scheduling"
)

// Job represents a job row claimed by a worker.
type Job struct {
	JobID      string
	JobType    string
	Payload    string // JSON
	Status     string
	WorkerID   string
	RetryCount int
	MaxRetries int
}

// JobMessage is the queue message referencing a job row.
type JobMessage struct {
	JobID       string `json:"job_id"`
	DeliveryTag uint64 `json:"-"`
}

// GroupCreationPayload is the payload of a group-creation job. The VK token is
// not carried here; the worker resolves it from the student record and
// decrypts it for the duration of the run.
type GroupCreationPayload struct {
	StudentID string         `json:"student_id"`
	Profile   StudentProfile `json:"profile"`
}

// PostSchedulingPayload is the payload of a post-scheduling job.
type PostSchedulingPayload struct {
	StudentID string         `json:"student_id"`
	GroupID   int64          `json:"group_id"`
	Posts     []DeferredPost `json:"posts"`
}

// DeferredPost is a post carried over to the scheduling queue. A DelayDays of
// zero means publish immediately.
type DeferredPost struct {
	Content   string `json:"content"`
	DelayDays int    `json:"delay_days,omitempty"`
}
