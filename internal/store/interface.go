// internal/store/interface.go
package store

import (
	"context"
	"io"

	"github.com/newthinker/glacier/internal/core"
)

// JobRequest describes a retrieval job to initiate.
type JobRequest struct {
	Kind      core.JobKind
	ArchiveID string // archive retrieval only
	SNSTopic  string // topic ARN notified on completion
	Tier      string
}

// JobDescription is the store's view of a retrieval job.
type JobDescription struct {
	JobID         string
	Completed     bool
	Status        core.JobStatus
	StatusMessage string
	OutputSize    int64
	TreeHash      string
}

// Client defines the low-level operations of a cold archive store.
// Implementations map a missing vault, archive or job to core.ErrNotFound and
// every other failure to core.ErrTransportFailure.
type Client interface {
	// UploadArchive stores body as one archive and returns its ID.
	UploadArchive(ctx context.Context, vault, description string, body io.ReadSeeker, treeHash string) (string, error)

	// InitiateMultipartUpload starts a multipart upload with the given part size.
	InitiateMultipartUpload(ctx context.Context, vault, description string, partSize int64) (string, error)

	// UploadPart uploads body as bytes [start, end] of the upload.
	UploadPart(ctx context.Context, vault, uploadID string, start, end int64, body io.ReadSeeker, treeHash string) error

	// CompleteMultipartUpload assembles the uploaded parts and returns the archive ID.
	CompleteMultipartUpload(ctx context.Context, vault, uploadID string, size int64, treeHash string) (string, error)

	// AbortMultipartUpload discards the parts of an unfinished upload.
	AbortMultipartUpload(ctx context.Context, vault, uploadID string) error

	// DeleteArchive removes an archive.
	DeleteArchive(ctx context.Context, vault, archiveID string) error

	// InitiateJob submits a retrieval job and returns its ID.
	InitiateJob(ctx context.Context, vault string, req JobRequest) (string, error)

	// DescribeJob returns the current state of a job.
	DescribeJob(ctx context.Context, vault, jobID string) (JobDescription, error)

	// GetJobOutput streams the output of a completed job. byteRange uses the
	// HTTP form "bytes=start-end"; empty means the whole output.
	GetJobOutput(ctx context.Context, vault, jobID, byteRange string) (io.ReadCloser, error)
}
