package gateway

import (
	"context"
	"time"

	"github.com/user/wechatgram/internal/types"
)

// JobStatus represents the lifecycle state of a Job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusDelivered JobStatus = "delivered"
	JobStatusFailed    JobStatus = "failed"
)

// Job tracks the delivery of one event's message to the target adapter.
// Key names the target conversation and selects the lane.
type Job struct {
	ID        types.DeliveryID
	Key       types.PeerKey
	Target    string
	Event     *types.Event
	Status    JobStatus
	CreatedAt time.Time
	StartedAt *time.Time
	EndedAt   *time.Time
	Error     error
	Ctx       context.Context
}

// NewJob creates a queued Job delivering event to target.
func NewJob(target string, event *types.Event) *Job {
	return &Job{
		ID:        types.NewDeliveryID(),
		Key:       types.NewPeerKey(target, event.Message.Peer),
		Target:    target,
		Event:     event,
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
	}
}

func (j *Job) start() {
	now := time.Now()
	j.StartedAt = &now
	j.Status = JobStatusRunning
}

func (j *Job) finish(err error) {
	now := time.Now()
	j.EndedAt = &now
	j.Error = err
	if err != nil {
		j.Status = JobStatusFailed
	} else {
		j.Status = JobStatusDelivered
	}
}
