// Package session ties the store, notification channels and retrieval
// machine together for one vault.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/newthinker/glacier/internal/awsconf"
	"github.com/newthinker/glacier/internal/config"
	"github.com/newthinker/glacier/internal/core"
	"github.com/newthinker/glacier/internal/metrics"
	"github.com/newthinker/glacier/internal/notify"
	"github.com/newthinker/glacier/internal/retrieval"
	"github.com/newthinker/glacier/internal/sink"
	"github.com/newthinker/glacier/internal/store"
	"github.com/newthinker/glacier/internal/transfer"
	"go.uber.org/zap"
)

// Option customizes a Session.
type Option func(*Session)

// WithStore uses st instead of a Glacier client.
func WithStore(st store.Client) Option {
	return func(s *Session) { s.store = st }
}

// WithProvisioner uses p instead of SNS/SQS channels.
func WithProvisioner(p notify.Provisioner) Option {
	return func(s *Session) { s.provisioner = p }
}

// WithSink sets where retrieval output is placed.
func WithSink(sk sink.Sink) Option {
	return func(s *Session) { s.sink = sk }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMetrics sets the metrics registry.
func WithMetrics(r *metrics.Registry) Option {
	return func(s *Session) { s.metrics = r }
}

// Session performs vault actions. Retrievals within one session run one at a
// time, each with its own notification channel.
type Session struct {
	cfg         *config.Config
	vault       core.Vault
	store       store.Client
	provisioner notify.Provisioner
	sink        sink.Sink
	logger      *zap.Logger
	metrics     *metrics.Registry

	uploader *transfer.Uploader
	machine  *retrieval.Machine

	retrievalMu sync.Mutex

	mu     sync.RWMutex
	closed bool
}

// New opens a session on vault. Clients not supplied through options are
// built from cfg, which requires AWS credentials.
func New(ctx context.Context, cfg *config.Config, vault string, opts ...Option) (*Session, error) {
	if vault == "" {
		return nil, core.Errorf(core.ErrInvalidInput, "vault name is required")
	}
	if cfg == nil {
		cfg = config.Defaults()
	}

	s := &Session{
		cfg:   cfg,
		vault: core.Vault{Name: vault, Region: cfg.AWS.Region},
	}
	if !s.vault.IsValid() {
		return nil, core.Errorf(core.ErrInvalidInput, "vault %s needs a region", vault)
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.With(zap.String("vault", vault))

	if s.store == nil || s.provisioner == nil || s.sink == nil {
		awsCfg, err := awsconf.Resolve(ctx, cfg.AWS, s.logger)
		if err != nil {
			return nil, err
		}
		s.buildClients(awsCfg)
	}

	s.uploader = transfer.New(s.store, transfer.Config{
		PartSize:           cfg.Upload.PartSize,
		MultipartThreshold: cfg.Upload.MultipartThreshold,
	}, s.logger, s.metrics)

	r := cfg.Retrieval
	s.machine = retrieval.New(s.store, s.sink, retrieval.Config{
		ReceiveWait:        r.ReceiveWait,
		NotificationBudget: r.NotificationBudget,
		PollInterval:       r.PollInterval,
		HardTimeout:        r.HardTimeout,
		ChunkSize:          r.ChunkSize,
		WorkDir:            r.WorkDir,
		Tier:               r.Tier,
		Overwrite:          r.OnConflict != config.OnConflictFail,
	}, s.logger, s.metrics)

	return s, nil
}

func (s *Session) buildClients(awsCfg aws.Config) {
	if s.store == nil {
		s.store = store.NewGlacier(awsCfg, s.cfg.AWS.AccountID)
	}
	if s.provisioner == nil {
		s.provisioner = notify.NewAWS(awsCfg, notify.AWSConfig{
			TopicPrefix: s.cfg.Notification.TopicPrefix,
			QueuePrefix: s.cfg.Notification.QueuePrefix,
		}, s.logger)
	}
	if s.sink == nil {
		mux := &sink.Mux{Local: sink.NewLocalFS("")}
		o := s.cfg.Output.S3
		mux.S3 = sink.NewS3(awsCfg, sink.S3Config{
			Endpoint:  o.Endpoint,
			Region:    o.Region,
			AccessKey: o.AccessKey,
			SecretKey: o.SecretKey,
			Prefix:    o.Prefix,
		})
		s.sink = mux
	}
}

// Vault returns the session's vault.
func (s *Session) Vault() core.Vault {
	return s.vault
}

func (s *Session) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return core.Errorf(core.ErrSessionClosed, "vault %s", s.vault.Name)
	}
	return nil
}

// Upload stores the file at path as a new archive.
func (s *Session) Upload(ctx context.Context, path string) (core.Archive, error) {
	if err := s.checkOpen(); err != nil {
		return core.Archive{}, err
	}
	return s.uploader.Upload(ctx, s.vault.Name, path)
}

// Delete removes an archive.
func (s *Session) Delete(ctx context.Context, archiveID string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if archiveID == "" {
		return core.Errorf(core.ErrInvalidInput, "archive ID is required")
	}
	if err := s.store.DeleteArchive(ctx, s.vault.Name, archiveID); err != nil {
		return err
	}
	s.logger.Info("archive deleted", zap.String("archive_id", archiveID))
	return nil
}

// Inventory retrieves the vault inventory to dest, or to
// DefaultInventoryDestination when dest is empty, and returns where it was
// placed.
func (s *Session) Inventory(ctx context.Context, dest string) (string, error) {
	if dest == "" {
		dest = DefaultInventoryDestination(s.vault.Name)
	}
	return s.retrieve(ctx, retrieval.Request{
		Vault:       s.vault,
		Kind:        core.JobInventory,
		Destination: dest,
	})
}

// Download retrieves an archive to dest, or to DefaultDownloadDestination
// when dest is empty, and returns where it was placed.
func (s *Session) Download(ctx context.Context, archiveID, dest string) (string, error) {
	if archiveID == "" {
		return "", core.Errorf(core.ErrInvalidInput, "archive ID is required")
	}
	if dest == "" {
		dest = DefaultDownloadDestination(archiveID)
	}
	return s.retrieve(ctx, retrieval.Request{
		Vault:       s.vault,
		Kind:        core.JobArchiveRetrieval,
		ArchiveID:   archiveID,
		Destination: dest,
	})
}

func (s *Session) retrieve(ctx context.Context, req retrieval.Request) (string, error) {
	s.retrievalMu.Lock()
	defer s.retrievalMu.Unlock()

	if err := s.checkOpen(); err != nil {
		return "", err
	}
	if err := s.machine.CheckDestination(ctx, req.Destination); err != nil {
		return "", err
	}

	ch, err := s.provisioner.Open(ctx, s.vault)
	if err != nil {
		var ce *core.Error
		if !errors.As(err, &ce) {
			err = core.WrapError(core.ErrTransportFailure, fmt.Errorf("opening notification channel: %w", err))
		}
		return "", err
	}
	s.metrics.ChannelOpened()
	defer s.teardown(ctx, ch)

	_, location, err := s.machine.Run(ctx, ch, req)
	return location, err
}

// teardown closes ch even when ctx is already done. A failed close is retried
// once; a channel that still cannot be deleted is logged so it can be removed
// by hand.
func (s *Session) teardown(ctx context.Context, ch notify.Channel) {
	timeout := s.cfg.Notification.TeardownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	err := ch.Close(tctx)
	if err != nil {
		s.logger.Warn("notification channel teardown failed, retrying", zap.Error(err))
		err = ch.Close(tctx)
	}
	if err != nil {
		s.logger.Error("notification channel left behind",
			zap.String("topic", ch.TopicARN()),
			zap.Error(err),
		)
		return
	}
	s.metrics.ChannelClosed()
}

// Close ends the session. Later calls fail with core.ErrSessionClosed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
