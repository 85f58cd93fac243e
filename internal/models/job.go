package models

type JobStatus int

const (
	JobImageBuilding       JobStatus = 1
	JobImageBuildingFailed JobStatus = 2
	JobStartingExecutor    JobStatus = 3
	JobRunningExecutor     JobStatus = 4
	JobFinished            JobStatus = 5
	JobExecutorKilled      JobStatus = 6
	JobExecutorFailed      JobStatus = 7
	JobStatusUnknown       JobStatus = 8
	JobLaunchFailed        JobStatus = 9
)

// Job is a job record as served by the manatee/jobs endpoint. CreatedAt and
// UpdatedAt hold display strings once the record has been normalized.
type Job struct {
	ID              int64     `json:"id" yaml:"id"`
	JupyterFileName string    `json:"jupyter_file_name" yaml:"jupyter_file_name"`
	JobStatus       JobStatus `json:"job_status" yaml:"job_status"`
	CreatedAt       string    `json:"created_at" yaml:"created_at"`
	UpdatedAt       string    `json:"updated_at" yaml:"updated_at"`
}

// IsFinished gates the output and attestation actions.
func (j Job) IsFinished() bool {
	return j.JobStatus == JobFinished
}

func (s JobStatus) String() string {
	if style, ok := LookupStatus(s); ok {
		return style.Text
	}
	return UnknownStatusText
}

// IsTerminal reports whether no further transition is expected. Codes outside
// the table are treated as still in progress.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobImageBuildingFailed, JobFinished, JobExecutorKilled, JobExecutorFailed, JobStatusUnknown, JobLaunchFailed:
		return true
	}
	return false
}
