// Package notify provisions the topic and queue pair that delivers retrieval
// job completion events.
package notify

import (
	"context"
	"time"

	"github.com/newthinker/glacier/internal/core"
)

// Event is a job completion notification.
type Event struct {
	JobID         string
	Action        string
	Status        core.JobStatus
	StatusMessage string
	OutputSize    int64
	TreeHash      string
}

// Channel receives completion events for jobs of one vault. A channel serves
// a single retrieval and is closed when that retrieval ends.
type Channel interface {
	// TopicARN is the topic to attach to a retrieval job.
	TopicARN() string

	// Receive waits at most wait for events. An empty result is not an error.
	Receive(ctx context.Context, wait time.Duration) ([]Event, error)

	// Close deletes the topic and queue. It is safe to call more than once.
	Close(ctx context.Context) error
}

// Provisioner creates channels.
type Provisioner interface {
	Open(ctx context.Context, vault core.Vault) (Channel, error)
}
