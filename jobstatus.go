// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package zhmc

// Job status values reported by the HMC Query Job Status operation
const (
	// JobStatusRunning means the job is in progress
	JobStatusRunning = "running"

	// JobStatusCancelPending means a cancellation was requested but the job
	// has not stopped yet
	JobStatusCancelPending = "cancel-pending"

	// JobStatusCanceled means the job was cancelled before completion
	JobStatusCanceled = "canceled"

	// JobStatusComplete means the job has finished. The job-status-code and
	// job-results fields carry the outcome of the operation.
	JobStatusComplete = "complete"
)

// RunningJobStatuses lists the job statuses that keep the poll loop going.
// Every other status ends polling.
var RunningJobStatuses = []string{
	JobStatusRunning,
	JobStatusCancelPending,
}

// IsJobRunning reports whether a job with the given status is still in flight
func IsJobRunning(status string) bool {
	for _, running := range RunningJobStatuses {
		if status == running {
			return true
		}
	}
	return false
}
