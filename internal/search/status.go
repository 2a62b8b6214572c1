package search

import "time"

// JobStatus is the normalized state of an indexer run.
type JobStatus int

const (
	// JobNotStarted means the indexer has no run yet (or was reset).
	JobNotStarted JobStatus = iota
	// JobRunning means a run is in progress.
	JobRunning
	// JobSuccess means the last run completed.
	JobSuccess
	// JobTransientFailure means the last run failed in a way the service
	// considers recoverable on a later run.
	JobTransientFailure
	// JobFailed means the indexer is in an error state.
	JobFailed
)

// String implements fmt.Stringer.
func (s JobStatus) String() string {
	switch s {
	case JobNotStarted:
		return "notStarted"
	case JobRunning:
		return "running"
	case JobSuccess:
		return "success"
	case JobTransientFailure:
		return "transientFailure"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further progress will happen without a new run.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobSuccess, JobTransientFailure, JobFailed:
		return true
	default:
		return false
	}
}

// Raw execution status values reported by the service.
const (
	rawInProgress       = "inProgress"
	rawSuccess          = "success"
	rawTransientFailure = "transientFailure"
	rawReset            = "reset"

	rawServiceError = "error"
)

// ServiceStatusError is the indexer status the service reports when the
// indexer itself cannot run, independent of any execution.
const ServiceStatusError = rawServiceError

// ParseJobStatus maps the service's indexer status and last execution status.
// lastResult is empty when the indexer has never run.
func ParseJobStatus(serviceStatus, lastResult string) JobStatus {
	if serviceStatus == rawServiceError {
		return JobFailed
	}
	switch lastResult {
	case "", rawReset:
		return JobNotStarted
	case rawInProgress:
		return JobRunning
	case rawSuccess:
		return JobSuccess
	case rawTransientFailure:
		return JobTransientFailure
	default:
		return JobFailed
	}
}

// IndexerStatus is a snapshot of an indexer's execution state.
type IndexerStatus struct {
	Status JobStatus

	// ServiceStatus is the indexer's overall status (running, error, unknown).
	ServiceStatus string
	// LastResult is the raw status of the most recent execution.
	LastResult string

	ErrorMessage   string
	ItemsProcessed int
	ItemsFailed    int
	StartTime      time.Time
	EndTime        time.Time
}

type executionResult struct {
	Status         string     `json:"status"`
	ErrorMessage   string     `json:"errorMessage"`
	StartTime      *time.Time `json:"startTime"`
	EndTime        *time.Time `json:"endTime"`
	ItemsProcessed int        `json:"itemsProcessed"`
	ItemsFailed    int        `json:"itemsFailed"`
}

type statusResponse struct {
	Status     string           `json:"status"`
	LastResult *executionResult `json:"lastResult"`
}

func (r statusResponse) toStatus() IndexerStatus {
	st := IndexerStatus{ServiceStatus: r.Status}
	if lr := r.LastResult; lr != nil {
		st.LastResult = lr.Status
		st.ErrorMessage = lr.ErrorMessage
		st.ItemsProcessed = lr.ItemsProcessed
		st.ItemsFailed = lr.ItemsFailed
		if lr.StartTime != nil {
			st.StartTime = *lr.StartTime
		}
		if lr.EndTime != nil {
			st.EndTime = *lr.EndTime
		}
	}
	st.Status = ParseJobStatus(st.ServiceStatus, st.LastResult)
	return st
}
