// Package mocks provides an in-memory archive store for testing.
package mocks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/newthinker/glacier/internal/core"
	"github.com/newthinker/glacier/internal/store"
	"github.com/newthinker/glacier/internal/treehash"
)

// JobBehavior scripts how retrieval jobs resolve.
type JobBehavior struct {
	// PollsUntilDone is the number of DescribeJob calls after which the job
	// becomes terminal on its own. Zero means it is already terminal.
	PollsUntilDone int
	// Fail resolves the job to FAILED instead of SUCCEEDED.
	Fail bool
	// Never keeps the job in progress forever.
	Never bool
}

type archive struct {
	description string
	data        []byte
	treeHash    string
	created     time.Time
}

type upload struct {
	vault       string
	description string
	partSize    int64
	parts       map[int64][]byte
}

type job struct {
	id        string
	vault     string
	req       store.JobRequest
	behavior  JobBehavior
	describes int
	done      bool
	output    []byte
	treeHash  string
}

// Store implements store.Client in memory.
type Store struct {
	mu sync.Mutex

	vaults  map[string]map[string]*archive
	uploads map[string]*upload
	jobs    map[string]*job
	nextID  int64
	calls   int

	behavior JobBehavior

	// Err, when set, is returned by every call.
	Err error
	// FailPart makes the part starting at this offset fail; -1 disables.
	FailPart int64
	// OnInitiate is invoked after a job is created.
	OnInitiate func(jobID string, req store.JobRequest)

	aborted []string
}

// New creates a store holding the given empty vaults.
func New(vaults ...string) *Store {
	s := &Store{
		vaults:   make(map[string]map[string]*archive),
		uploads:  make(map[string]*upload),
		jobs:     make(map[string]*job),
		FailPart: -1,
	}
	for _, v := range vaults {
		s.vaults[v] = make(map[string]*archive)
	}
	return s
}

var _ store.Client = (*Store)(nil)

// SetJobBehavior sets the behavior of jobs initiated from now on.
func (s *Store) SetJobBehavior(b JobBehavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behavior = b
}

// Calls returns the number of store requests received.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Aborted returns the IDs of aborted multipart uploads.
func (s *Store) Aborted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.aborted...)
}

// Complete resolves a job immediately according to its behavior.
func (s *Store) Complete(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[jobID]; ok && !j.behavior.Never {
		j.done = true
	}
}

// JobStatus reports the current status of a job as the store sees it.
func (s *Store) JobStatus(jobID string) core.JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return ""
	}
	return j.status()
}

// Archive returns the stored bytes of an archive.
func (s *Store) Archive(vault, archiveID string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.vaults[vault][archiveID]
	if !ok {
		return nil, false
	}
	return a.data, true
}

func (j *job) status() core.JobStatus {
	switch {
	case !j.done:
		return core.JobInProgress
	case j.behavior.Fail:
		return core.JobFailed
	default:
		return core.JobSucceeded
	}
}

func (s *Store) begin() error {
	s.calls++
	return s.Err
}

func (s *Store) id(prefix string) string {
	s.nextID++
	return fmt.Sprintf("%s-%06d", prefix, s.nextID)
}

func (s *Store) vault(name string) (map[string]*archive, error) {
	v, ok := s.vaults[name]
	if !ok {
		return nil, core.Errorf(core.ErrNotFound, "vault %s", name)
	}
	return v, nil
}

func (s *Store) UploadArchive(ctx context.Context, vault, description string, body io.ReadSeeker, treeHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return "", err
	}
	v, err := s.vault(vault)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", core.WrapError(core.ErrTransportFailure, err)
	}
	if sum, _, _ := treehash.Sum(bytes.NewReader(data)); sum != treeHash {
		return "", core.Errorf(core.ErrInvalidInput, "checksum mismatch: got %s, computed %s", treeHash, sum)
	}
	id := s.id("archive")
	v[id] = &archive{description: description, data: data, treeHash: treeHash, created: time.Now().UTC()}
	return id, nil
}

func (s *Store) InitiateMultipartUpload(ctx context.Context, vault, description string, partSize int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return "", err
	}
	if _, err := s.vault(vault); err != nil {
		return "", err
	}
	id := s.id("upload")
	s.uploads[id] = &upload{vault: vault, description: description, partSize: partSize, parts: make(map[int64][]byte)}
	return id, nil
}

func (s *Store) UploadPart(ctx context.Context, vault, uploadID string, start, end int64, body io.ReadSeeker, treeHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}
	u, ok := s.uploads[uploadID]
	if !ok {
		return core.Errorf(core.ErrNotFound, "upload %s", uploadID)
	}
	if s.FailPart == start {
		return core.Errorf(core.ErrTransportFailure, "part %d-%d: connection reset", start, end)
	}
	if start%u.partSize != 0 {
		return core.Errorf(core.ErrInvalidInput, "part start %d not aligned to %d", start, u.partSize)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return core.WrapError(core.ErrTransportFailure, err)
	}
	if int64(len(data)) != end-start+1 {
		return core.Errorf(core.ErrInvalidInput, "part %d-%d has %d bytes", start, end, len(data))
	}
	if sum, _, _ := treehash.Sum(bytes.NewReader(data)); sum != treeHash {
		return core.Errorf(core.ErrInvalidInput, "part %d-%d checksum mismatch", start, end)
	}
	u.parts[start] = data
	return nil
}

func (s *Store) CompleteMultipartUpload(ctx context.Context, vault, uploadID string, size int64, treeHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return "", err
	}
	u, ok := s.uploads[uploadID]
	if !ok {
		return "", core.Errorf(core.ErrNotFound, "upload %s", uploadID)
	}
	offsets := make([]int64, 0, len(u.parts))
	for off := range u.parts {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	var buf bytes.Buffer
	for _, off := range offsets {
		if int64(buf.Len()) != off {
			return "", core.Errorf(core.ErrInvalidInput, "missing part at offset %d", buf.Len())
		}
		buf.Write(u.parts[off])
	}
	if int64(buf.Len()) != size {
		return "", core.Errorf(core.ErrInvalidInput, "archive size %d, parts total %d", size, buf.Len())
	}
	if sum, _, _ := treehash.Sum(bytes.NewReader(buf.Bytes())); sum != treeHash {
		return "", core.Errorf(core.ErrInvalidInput, "archive checksum mismatch")
	}

	delete(s.uploads, uploadID)
	id := s.id("archive")
	s.vaults[u.vault][id] = &archive{description: u.description, data: buf.Bytes(), treeHash: treeHash, created: time.Now().UTC()}
	return id, nil
}

func (s *Store) AbortMultipartUpload(ctx context.Context, vault, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}
	delete(s.uploads, uploadID)
	s.aborted = append(s.aborted, uploadID)
	return nil
}

func (s *Store) DeleteArchive(ctx context.Context, vault, archiveID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return err
	}
	v, err := s.vault(vault)
	if err != nil {
		return err
	}
	if _, ok := v[archiveID]; !ok {
		return core.Errorf(core.ErrNotFound, "archive %s", archiveID)
	}
	delete(v, archiveID)
	return nil
}

func (s *Store) InitiateJob(ctx context.Context, vault string, req store.JobRequest) (string, error) {
	s.mu.Lock()
	if err := s.begin(); err != nil {
		s.mu.Unlock()
		return "", err
	}
	v, err := s.vault(vault)
	if err != nil {
		s.mu.Unlock()
		return "", err
	}

	j := &job{id: s.id("job"), vault: vault, req: req, behavior: s.behavior}
	switch req.Kind {
	case core.JobInventory:
		j.output, err = inventoryOf(vault, v)
		if err != nil {
			s.mu.Unlock()
			return "", core.WrapError(core.ErrTransportFailure, err)
		}
	case core.JobArchiveRetrieval:
		a, ok := v[req.ArchiveID]
		if !ok {
			s.mu.Unlock()
			return "", core.Errorf(core.ErrNotFound, "archive %s", req.ArchiveID)
		}
		j.output = a.data
		j.treeHash = a.treeHash
	default:
		s.mu.Unlock()
		return "", core.Errorf(core.ErrInvalidInput, "job kind %q", req.Kind)
	}
	j.done = !j.behavior.Never && j.behavior.PollsUntilDone == 0
	s.jobs[j.id] = j
	hook := s.OnInitiate
	s.mu.Unlock()

	if hook != nil {
		hook(j.id, req)
	}
	return j.id, nil
}

func (s *Store) DescribeJob(ctx context.Context, vault, jobID string) (store.JobDescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return store.JobDescription{}, err
	}
	j, ok := s.jobs[jobID]
	if !ok || j.vault != vault {
		return store.JobDescription{}, core.Errorf(core.ErrNotFound, "job %s", jobID)
	}
	j.describes++
	if !j.done && !j.behavior.Never && j.describes >= j.behavior.PollsUntilDone {
		j.done = true
	}

	desc := store.JobDescription{JobID: j.id, Status: j.status()}
	desc.Completed = desc.Status.Terminal()
	if desc.Status == core.JobSucceeded {
		desc.OutputSize = int64(len(j.output))
		desc.TreeHash = j.treeHash
	}
	if desc.Status == core.JobFailed {
		desc.StatusMessage = "simulated failure"
	}
	return desc, nil
}

func (s *Store) GetJobOutput(ctx context.Context, vault, jobID, byteRange string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.begin(); err != nil {
		return nil, err
	}
	j, ok := s.jobs[jobID]
	if !ok || j.vault != vault {
		return nil, core.Errorf(core.ErrNotFound, "job %s", jobID)
	}
	if j.status() != core.JobSucceeded {
		return nil, core.Errorf(core.ErrInvalidInput, "job %s has no output", jobID)
	}

	data := j.output
	if byteRange != "" {
		var start, end int64
		if _, err := fmt.Sscanf(byteRange, "bytes=%d-%d", &start, &end); err != nil {
			return nil, core.Errorf(core.ErrInvalidInput, "range %q", byteRange)
		}
		if start < 0 || end < start || end >= int64(len(data)) {
			return nil, core.Errorf(core.ErrInvalidInput, "range %q outside output of %d bytes", byteRange, len(data))
		}
		data = data[start : end+1]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func inventoryOf(vault string, archives map[string]*archive) ([]byte, error) {
	inv := core.Inventory{
		VaultARN:      "arn:aws:glacier:us-east-1:000000000000:vaults/" + vault,
		InventoryDate: time.Now().UTC(),
		ArchiveList:   []core.InventoryArchive{},
	}
	for id, a := range archives {
		inv.ArchiveList = append(inv.ArchiveList, core.InventoryArchive{
			ArchiveID:          id,
			ArchiveDescription: a.description,
			CreationDate:       a.created,
			Size:               int64(len(a.data)),
			SHA256TreeHash:     a.treeHash,
		})
	}
	sort.Slice(inv.ArchiveList, func(i, j int) bool { return inv.ArchiveList[i].ArchiveID < inv.ArchiveList[j].ArchiveID })
	return json.Marshal(inv)
}
