// Package transfer uploads local files to a vault, as a single request or as
// a multipart upload depending on size.
package transfer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/newthinker/glacier/internal/core"
	"github.com/newthinker/glacier/internal/metrics"
	"github.com/newthinker/glacier/internal/store"
	"github.com/newthinker/glacier/internal/treehash"
	"go.uber.org/zap"
)

// Config controls how files are split.
type Config struct {
	PartSize           int64
	MultipartThreshold int64
}

// Uploader uploads files to a store.
type Uploader struct {
	store   store.Client
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Registry
}

// New creates an Uploader. logger and reg may be nil.
func New(st store.Client, cfg Config, logger *zap.Logger, reg *metrics.Registry) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PartSize <= 0 {
		cfg.PartSize = 8 << 20
	}
	if cfg.MultipartThreshold <= 0 {
		cfg.MultipartThreshold = 100 << 20
	}
	return &Uploader{store: st, cfg: cfg, logger: logger, metrics: reg}
}

// Upload stores the file at path in vault. The archive description is the
// file's base name. A path that is not a readable regular file fails with
// core.ErrInvalidInput before anything is sent.
func (u *Uploader) Upload(ctx context.Context, vault, path string) (core.Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return core.Archive{}, core.WrapError(core.ErrInvalidInput, err)
	}
	if !info.Mode().IsRegular() {
		return core.Archive{}, core.Errorf(core.ErrInvalidInput, "%s is not a regular file", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return core.Archive{}, core.WrapError(core.ErrInvalidInput, err)
	}
	defer f.Close()

	name := filepath.Base(path)
	start := time.Now()
	var archive core.Archive
	if info.Size() < u.cfg.MultipartThreshold {
		archive, err = u.single(ctx, vault, name, f)
	} else {
		archive, err = u.multipart(ctx, vault, name, f, info.Size())
	}
	if err != nil {
		return core.Archive{}, err
	}

	u.metrics.AddBytes("upload", archive.SizeBytes)
	u.logger.Info("archive uploaded",
		zap.String("vault", vault),
		zap.String("file", path),
		zap.String("archive_id", archive.ArchiveID),
		zap.Int64("bytes", archive.SizeBytes),
		zap.Duration("elapsed", time.Since(start)),
	)
	return archive, nil
}

func (u *Uploader) single(ctx context.Context, vault, name string, f *os.File) (core.Archive, error) {
	hash, size, err := treehash.Sum(f)
	if err != nil {
		return core.Archive{}, core.WrapError(core.ErrInvalidInput, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return core.Archive{}, core.WrapError(core.ErrInvalidInput, err)
	}

	id, err := u.store.UploadArchive(ctx, vault, name, f, hash)
	if err != nil {
		return core.Archive{}, err
	}
	return core.Archive{Name: name, ArchiveID: id, SizeBytes: size, Checksum: hash}, nil
}

func (u *Uploader) multipart(ctx context.Context, vault, name string, f *os.File, size int64) (core.Archive, error) {
	uploadID, err := u.store.InitiateMultipartUpload(ctx, vault, name, u.cfg.PartSize)
	if err != nil {
		return core.Archive{}, err
	}
	log := u.logger.With(zap.String("vault", vault), zap.String("upload_id", uploadID))

	var leaves [][]byte
	for start := int64(0); start < size; start += u.cfg.PartSize {
		n := u.cfg.PartSize
		if start+n > size {
			n = size - start
		}
		part := io.NewSectionReader(f, start, n)

		partLeaves, _, err := treehash.Leaves(part)
		if err != nil {
			u.abort(vault, uploadID, log)
			return core.Archive{}, core.WrapError(core.ErrInvalidInput, err)
		}
		if _, err := part.Seek(0, io.SeekStart); err != nil {
			u.abort(vault, uploadID, log)
			return core.Archive{}, core.WrapError(core.ErrInvalidInput, err)
		}

		end := start + n - 1
		if err := u.store.UploadPart(ctx, vault, uploadID, start, end, part, treehash.Hex(treehash.Combine(partLeaves))); err != nil {
			u.abort(vault, uploadID, log)
			return core.Archive{}, fmt.Errorf("part %d-%d of %s: %w", start, end, name, err)
		}
		leaves = append(leaves, partLeaves...)
		log.Debug("part uploaded", zap.Int64("start", start), zap.Int64("end", end))
	}

	hash := treehash.Hex(treehash.Combine(leaves))
	id, err := u.store.CompleteMultipartUpload(ctx, vault, uploadID, size, hash)
	if err != nil {
		u.abort(vault, uploadID, log)
		return core.Archive{}, err
	}
	return core.Archive{Name: name, ArchiveID: id, SizeBytes: size, Checksum: hash}, nil
}

// abort asks the store to discard uploaded parts. Failure is only logged;
// the store expires abandoned uploads on its own.
func (u *Uploader) abort(vault, uploadID string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := u.store.AbortMultipartUpload(ctx, vault, uploadID); err != nil {
		log.Warn("abort multipart upload failed", zap.Error(err))
	}
}
