package transfer

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/newthinker/glacier/internal/core"
	"github.com/newthinker/glacier/internal/metrics"
	"github.com/newthinker/glacier/internal/store/mocks"
	"github.com/newthinker/glacier/internal/treehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1 << 20

func writeFile(t *testing.T, name string, size int) (string, []byte) {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, data
}

func uploadedBytes(t *testing.T, reg *metrics.Registry) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != "glacier_bytes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "direction" && l.GetValue() == "upload" {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestUpload_SingleRequest(t *testing.T) {
	st := mocks.New("photos")
	reg := metrics.NewRegistry()
	u := New(st, Config{PartSize: mib, MultipartThreshold: 2 * mib}, nil, reg)
	path, data := writeFile(t, "notes.txt", 1500)

	archive, err := u.Upload(context.Background(), "photos", path)
	require.NoError(t, err)

	want, _, _ := treehash.Sum(bytes.NewReader(data))
	assert.Equal(t, "notes.txt", archive.Name)
	assert.Equal(t, int64(1500), archive.SizeBytes)
	assert.Equal(t, want, archive.Checksum)
	assert.NotEmpty(t, archive.ArchiveID)
	assert.Equal(t, 1, st.Calls())

	stored, ok := st.Archive("photos", archive.ArchiveID)
	require.True(t, ok)
	assert.Equal(t, data, stored)
	assert.Equal(t, 1500.0, uploadedBytes(t, reg))
}

func TestUpload_Multipart(t *testing.T) {
	st := mocks.New("photos")
	u := New(st, Config{PartSize: mib, MultipartThreshold: 2 * mib}, nil, nil)
	path, data := writeFile(t, "video.mp4", 2*mib+mib/2)

	archive, err := u.Upload(context.Background(), "photos", path)
	require.NoError(t, err)

	want, _, _ := treehash.Sum(bytes.NewReader(data))
	assert.Equal(t, want, archive.Checksum)
	// initiate + 3 parts + complete
	assert.Equal(t, 5, st.Calls())

	stored, ok := st.Archive("photos", archive.ArchiveID)
	require.True(t, ok)
	assert.Equal(t, data, stored)
}

func TestUpload_AtThresholdUsesMultipart(t *testing.T) {
	st := mocks.New("photos")
	u := New(st, Config{PartSize: mib, MultipartThreshold: 2 * mib}, nil, nil)
	path, _ := writeFile(t, "exact.bin", 2*mib)

	_, err := u.Upload(context.Background(), "photos", path)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Calls())
}

func TestUpload_PartFailureAbandonsUpload(t *testing.T) {
	st := mocks.New("photos")
	st.FailPart = mib
	u := New(st, Config{PartSize: mib, MultipartThreshold: 2 * mib}, nil, nil)
	path, _ := writeFile(t, "video.mp4", 3*mib)

	_, err := u.Upload(context.Background(), "photos", path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrTransportFailure))
	assert.Len(t, st.Aborted(), 1)
}

func TestUpload_MissingFile(t *testing.T) {
	st := mocks.New("photos")
	u := New(st, Config{}, nil, nil)

	_, err := u.Upload(context.Background(), "photos", filepath.Join(t.TempDir(), "nope.txt"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
	assert.Equal(t, 0, st.Calls())
}

func TestUpload_Directory(t *testing.T) {
	st := mocks.New("photos")
	u := New(st, Config{}, nil, nil)

	_, err := u.Upload(context.Background(), "photos", t.TempDir())
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
	assert.Equal(t, 0, st.Calls())
}

func TestUpload_UnknownVault(t *testing.T) {
	st := mocks.New("photos")
	u := New(st, Config{}, nil, nil)
	path, _ := writeFile(t, "a.txt", 10)

	_, err := u.Upload(context.Background(), "missing", path)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}
