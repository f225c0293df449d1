// Package retrieval drives inventory and archive retrieval jobs from
// submission to a file at the requested destination.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/newthinker/glacier/internal/core"
	"github.com/newthinker/glacier/internal/metrics"
	"github.com/newthinker/glacier/internal/notify"
	"github.com/newthinker/glacier/internal/sink"
	"github.com/newthinker/glacier/internal/store"
	"github.com/newthinker/glacier/internal/treehash"
	"go.uber.org/zap"
)

// How a job's terminal state was observed.
const (
	ByNotification = "notification"
	ByPolling      = "polling"
)

// Config bounds the wait and fetch steps.
type Config struct {
	ReceiveWait        time.Duration
	NotificationBudget time.Duration
	PollInterval       time.Duration
	HardTimeout        time.Duration
	ChunkSize          int64
	WorkDir            string
	Tier               string
	Overwrite          bool
}

// Request names what to retrieve and where to put it.
type Request struct {
	Vault       core.Vault
	Kind        core.JobKind
	ArchiveID   string
	Destination string
}

// Machine runs retrieval jobs against one store.
type Machine struct {
	store   store.Client
	sink    sink.Sink
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Registry
}

// New creates a Machine. logger and reg may be nil.
func New(st store.Client, sk sink.Sink, cfg Config, logger *zap.Logger, reg *metrics.Registry) *Machine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 64 << 20
	}
	return &Machine{store: st, sink: sk, cfg: cfg, logger: logger, metrics: reg}
}

// Run submits the job, waits for it on ch, fetches its output and places it
// at req.Destination. The returned job is nil only when submission failed.
// The channel is not closed here.
func (m *Machine) Run(ctx context.Context, ch notify.Channel, req Request) (*core.RetrievalJob, string, error) {
	if err := m.CheckDestination(ctx, req.Destination); err != nil {
		return nil, "", err
	}

	job, err := m.Submit(ctx, ch, req)
	if err != nil {
		return nil, "", err
	}
	if err := m.Wait(ctx, ch, job); err != nil {
		return job, "", err
	}
	if job.Status == core.JobFailed {
		return job, "", core.Errorf(core.ErrRetrievalJobFailed, "job %s: %s", job.JobID, job.StatusMessage)
	}

	tmp, err := m.Fetch(ctx, job)
	if err != nil {
		return job, "", err
	}
	location, err := m.Finalize(ctx, tmp, req.Destination)
	if err != nil {
		return job, "", err
	}
	return job, location, nil
}

// CheckDestination rejects an empty destination, and an existing one when
// overwriting is off.
func (m *Machine) CheckDestination(ctx context.Context, dest string) error {
	if dest == "" {
		return core.Errorf(core.ErrInvalidInput, "no destination given")
	}
	if m.cfg.Overwrite {
		return nil
	}
	exists, err := m.sink.Exists(ctx, dest)
	if err != nil {
		return core.WrapError(core.ErrInvalidInput, err)
	}
	if exists {
		return core.Errorf(core.ErrInvalidInput, "destination %s already exists", dest)
	}
	return nil
}

// Submit initiates the job with the channel's topic attached.
func (m *Machine) Submit(ctx context.Context, ch notify.Channel, req Request) (*core.RetrievalJob, error) {
	if req.Kind == core.JobArchiveRetrieval && req.ArchiveID == "" {
		return nil, core.Errorf(core.ErrInvalidInput, "archive retrieval needs an archive ID")
	}

	jobID, err := m.store.InitiateJob(ctx, req.Vault.Name, store.JobRequest{
		Kind:      req.Kind,
		ArchiveID: req.ArchiveID,
		SNSTopic:  ch.TopicARN(),
		Tier:      m.cfg.Tier,
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("retrieval job submitted",
		zap.String("vault", req.Vault.Name),
		zap.String("job_id", jobID),
		zap.String("kind", string(req.Kind)),
		zap.String("archive_id", req.ArchiveID),
	)
	return &core.RetrievalJob{
		JobID:           jobID,
		Kind:            req.Kind,
		Vault:           req.Vault,
		TargetArchiveID: req.ArchiveID,
		Status:          core.JobSubmitted,
		SubmittedAt:     time.Now(),
	}, nil
}

// Wait blocks until the job is terminal. It listens on ch until the
// notification budget is spent, then polls DescribeJob until the hard
// timeout. Both budgets count from submission.
func (m *Machine) Wait(ctx context.Context, ch notify.Channel, job *core.RetrievalJob) error {
	hardDeadline := job.SubmittedAt.Add(m.cfg.HardTimeout)
	notifyDeadline := job.SubmittedAt.Add(m.cfg.NotificationBudget)
	if notifyDeadline.After(hardDeadline) {
		notifyDeadline = hardDeadline
	}
	log := m.logger.With(zap.String("vault", job.Vault.Name), zap.String("job_id", job.JobID))

	ev, err := m.awaitEvent(ctx, ch, job.JobID, notifyDeadline, log)
	if err != nil {
		return err
	}
	if ev != nil {
		m.resolve(job, ev.Status, ev.StatusMessage, ev.OutputSize, ev.TreeHash, ByNotification)
		return nil
	}

	log.Info("no notification within budget, polling job status",
		zap.Duration("budget", m.cfg.NotificationBudget),
		zap.Duration("interval", m.cfg.PollInterval),
	)
	return m.poll(ctx, job, hardDeadline, log)
}

// awaitEvent returns the terminal event for jobID, or nil once deadline
// passes. Events for other jobs are ignored.
func (m *Machine) awaitEvent(ctx context.Context, ch notify.Channel, jobID string, deadline time.Time, log *zap.Logger) (*notify.Event, error) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := m.cfg.ReceiveWait
		if wait <= 0 || wait > remaining {
			wait = remaining
		}

		events, err := ch.Receive(ctx, wait)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("notification receive failed, falling back to polling", zap.Error(err))
			return nil, nil
		}
		for i := range events {
			ev := events[i]
			if ev.JobID != jobID {
				log.Debug("ignoring notification for another job", zap.String("other_job_id", ev.JobID))
				continue
			}
			if !ev.Status.Terminal() {
				continue
			}
			return &ev, nil
		}
	}
}

func (m *Machine) poll(ctx context.Context, job *core.RetrievalJob, deadline time.Time, log *zap.Logger) error {
	for {
		desc, err := m.store.DescribeJob(ctx, job.Vault.Name, job.JobID)
		if err != nil {
			return err
		}
		if desc.Status.Terminal() {
			m.resolve(job, desc.Status, desc.StatusMessage, desc.OutputSize, desc.TreeHash, ByPolling)
			return nil
		}
		if desc.Status == core.JobInProgress {
			if err := job.Transition(core.JobInProgress); err != nil {
				log.Warn("unexpected job transition", zap.Error(err))
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return core.Errorf(core.ErrTimeout, "job %s still %s after %s; it may still complete, describe it manually",
				job.JobID, job.Status, m.cfg.HardTimeout)
		}
		sleep := m.cfg.PollInterval
		if sleep > remaining {
			sleep = remaining
		}
		log.Debug("job not complete", zap.Duration("next_poll", sleep))

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (m *Machine) resolve(job *core.RetrievalJob, status core.JobStatus, msg string, size int64, hash, by string) {
	if err := job.Transition(status); err != nil {
		m.logger.Warn("unexpected job transition", zap.Error(err))
		job.Status = status
		job.OutputAvailable = status == core.JobSucceeded
	}
	job.StatusMessage = msg
	job.OutputSize = size
	job.TreeHash = hash
	job.CompletedBy = by

	elapsed := time.Since(job.SubmittedAt)
	m.metrics.RecordJobWait(string(job.Kind), by, elapsed.Seconds())
	m.logger.Info("retrieval job resolved",
		zap.String("vault", job.Vault.Name),
		zap.String("job_id", job.JobID),
		zap.String("status", string(status)),
		zap.String("strategy", by),
		zap.Duration("elapsed", elapsed),
	)
}

// Fetch downloads the output of a succeeded job into a temporary file under
// the work directory and returns its path. Archive output is checked against
// the job's tree hash when one is known. On error no file is left behind.
func (m *Machine) Fetch(ctx context.Context, job *core.RetrievalJob) (path string, err error) {
	if !job.OutputAvailable {
		return "", core.Errorf(core.ErrInvalidInput, "job %s has no output", job.JobID)
	}

	f, err := os.CreateTemp(m.cfg.WorkDir, "glacier-*.part")
	if err != nil {
		return "", core.WrapError(core.ErrTransportFailure, fmt.Errorf("creating temp file: %w", err))
	}
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(f.Name())
		}
	}()

	var written int64
	if job.OutputSize <= 0 {
		written, err = m.copyRange(ctx, f, job, "")
	} else {
		for start := int64(0); start < job.OutputSize; start += m.cfg.ChunkSize {
			end := start + m.cfg.ChunkSize - 1
			if end >= job.OutputSize {
				end = job.OutputSize - 1
			}
			var n int64
			n, err = m.copyRange(ctx, f, job, fmt.Sprintf("bytes=%d-%d", start, end))
			if err != nil {
				break
			}
			if n != end-start+1 {
				err = core.Errorf(core.ErrTransportFailure, "job %s: short read for bytes %d-%d: got %d", job.JobID, start, end, n)
				break
			}
			written += n
		}
	}
	if err != nil {
		return "", err
	}
	m.metrics.AddBytes("download", written)

	if job.Kind == core.JobArchiveRetrieval && job.TreeHash != "" {
		if _, err = f.Seek(0, io.SeekStart); err != nil {
			return "", core.WrapError(core.ErrTransportFailure, err)
		}
		sum, _, herr := treehash.Sum(f)
		if herr != nil {
			err = core.WrapError(core.ErrTransportFailure, herr)
			return "", err
		}
		if sum != job.TreeHash {
			err = core.Errorf(core.ErrTransportFailure, "job %s: tree hash mismatch: want %s, got %s", job.JobID, job.TreeHash, sum)
			return "", err
		}
	}

	if err = f.Sync(); err != nil {
		return "", core.WrapError(core.ErrTransportFailure, err)
	}
	m.logger.Debug("job output fetched",
		zap.String("job_id", job.JobID),
		zap.Int64("bytes", written),
		zap.String("path", f.Name()),
	)
	return f.Name(), nil
}

func (m *Machine) copyRange(ctx context.Context, w io.Writer, job *core.RetrievalJob, byteRange string) (int64, error) {
	rc, err := m.store.GetJobOutput(ctx, job.Vault.Name, job.JobID, byteRange)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	n, err := io.Copy(w, rc)
	if err != nil {
		var ce *core.Error
		if errors.As(err, &ce) {
			return n, err
		}
		return n, core.WrapError(core.ErrTransportFailure, err)
	}
	return n, nil
}

// Finalize places the fetched file at dest. On failure the file stays where
// it is and the error carries its path.
func (m *Machine) Finalize(ctx context.Context, tmp, dest string) (string, error) {
	location, err := m.sink.Place(ctx, tmp, dest, m.cfg.Overwrite)
	if err != nil {
		m.logger.Error("could not place retrieval output",
			zap.String("temp_path", tmp),
			zap.String("destination", dest),
			zap.Error(err),
		)
		return "", &core.FinalizeError{TempPath: tmp, Destination: dest, Cause: err}
	}
	return location, nil
}
