package core

import (
	"fmt"
	"time"
)

// Vault identifies a Glacier vault. Identity is (Name, Region).
type Vault struct {
	Name   string
	Region string
}

func (v Vault) String() string {
	return v.Name + "@" + v.Region
}

// IsValid checks if the vault has required fields
func (v Vault) IsValid() bool {
	return v.Name != "" && v.Region != ""
}

// Archive is an uploaded archive. ArchiveID is assigned by the store.
type Archive struct {
	Name      string `json:"name"`
	ArchiveID string `json:"archive_id"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// JobKind is the Glacier retrieval job type
type JobKind string

const (
	JobInventory        JobKind = "inventory-retrieval"
	JobArchiveRetrieval JobKind = "archive-retrieval"
)

// JobStatus is the client-side state of a retrieval job
type JobStatus string

const (
	JobSubmitted  JobStatus = "SUBMITTED"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobSucceeded  JobStatus = "SUCCEEDED"
	JobFailed     JobStatus = "FAILED"
)

// Terminal reports whether no further transitions are possible.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobSubmitted:
		return next == JobInProgress || next.Terminal()
	case JobInProgress:
		return next.Terminal()
	default:
		return false
	}
}

// RetrievalJob tracks one inventory or archive retrieval within a process.
type RetrievalJob struct {
	JobID           string
	Kind            JobKind
	Vault           Vault
	TargetArchiveID string
	Status          JobStatus
	OutputAvailable bool
	StatusMessage   string
	OutputSize      int64
	TreeHash        string
	CompletedBy     string
	SubmittedAt     time.Time
}

// Transition moves the job to next, rejecting illegal moves.
func (j *RetrievalJob) Transition(next JobStatus) error {
	if j.Status == next {
		return nil
	}
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("job %s: illegal transition %s -> %s", j.JobID, j.Status, next)
	}
	j.Status = next
	j.OutputAvailable = next == JobSucceeded
	return nil
}

// Inventory is the JSON inventory document produced by an inventory job.
type Inventory struct {
	VaultARN      string             `json:"VaultARN"`
	InventoryDate time.Time          `json:"InventoryDate"`
	ArchiveList   []InventoryArchive `json:"ArchiveList"`
}

// InventoryArchive is one archive entry of an Inventory.
type InventoryArchive struct {
	ArchiveID          string    `json:"ArchiveId"`
	ArchiveDescription string    `json:"ArchiveDescription"`
	CreationDate       time.Time `json:"CreationDate"`
	Size               int64     `json:"Size"`
	SHA256TreeHash     string    `json:"SHA256TreeHash"`
}

// TotalSize sums the size of all listed archives.
func (inv Inventory) TotalSize() int64 {
	var total int64
	for _, a := range inv.ArchiveList {
		total += a.Size
	}
	return total
}
