package action

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/newthinker/glacier/internal/core"
	"github.com/newthinker/glacier/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVault struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]error
	delay    time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeVault) enter(call string) error {
	n := f.inFlight.Add(1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	f.mu.Lock()
	f.calls = append(f.calls, call)
	err := f.failures[call]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return err
}

func (f *fakeVault) Upload(ctx context.Context, path string) (core.Archive, error) {
	if err := f.enter("upload " + path); err != nil {
		return core.Archive{}, err
	}
	return core.Archive{Name: path, ArchiveID: "id-" + path, SizeBytes: 3, Checksum: "abc"}, nil
}

func (f *fakeVault) Delete(ctx context.Context, archiveID string) error {
	return f.enter("delete " + archiveID)
}

func (f *fakeVault) Inventory(ctx context.Context, dest string) (string, error) {
	if err := f.enter("inventory " + dest); err != nil {
		return "", err
	}
	if dest == "" {
		dest = "default-inventory.json"
	}
	return dest, nil
}

func (f *fakeVault) Download(ctx context.Context, archiveID, dest string) (string, error) {
	if err := f.enter("download " + archiveID); err != nil {
		return "", err
	}
	return dest, nil
}

func TestParseVerb(t *testing.T) {
	for _, v := range Verbs {
		got, err := ParseVerb(strings.ToUpper(string(v)))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	_, err := ParseVerb("restore")
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestVerb_Retrieval(t *testing.T) {
	assert.True(t, VerbDownload.Retrieval())
	assert.True(t, VerbInventory.Retrieval())
	assert.False(t, VerbUpload.Retrieval())
	assert.False(t, VerbDelete.Retrieval())
}

func TestNew_Arguments(t *testing.T) {
	v := &fakeVault{}

	acts, err := New(VerbUpload, v, "photos", []string{"a.txt", "b.txt"})
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "b.txt", acts[1].Target())

	acts, err = New(VerbDownload, v, "photos", []string{"abc", "out.bin"})
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "out.bin", acts[0].(*Download).Destination)

	acts, err = New(VerbInventory, v, "photos", nil)
	require.NoError(t, err)
	assert.Equal(t, "photos", acts[0].Target())

	bad := []struct {
		verb Verb
		args []string
	}{
		{VerbUpload, nil},
		{VerbDelete, nil},
		{VerbDownload, nil},
		{VerbDownload, []string{"a", "b", "c"}},
		{VerbInventory, []string{"a", "b"}},
		{Verb("restore"), []string{"a"}},
	}
	for _, tt := range bad {
		_, err := New(tt.verb, v, "photos", tt.args)
		assert.True(t, errors.Is(err, core.ErrInvalidInput), "%s %v", tt.verb, tt.args)
	}
	assert.Empty(t, v.calls)
}

func TestActions_Execute(t *testing.T) {
	v := &fakeVault{}
	ctx := context.Background()

	res, err := (&Upload{Vault: v, Path: "a.txt"}).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, "id-a.txt", res.ArchiveID)
	assert.Equal(t, int64(3), res.SizeBytes)

	res, err = (&Inventory{Vault: v, VaultName: "photos"}).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, "default-inventory.json", res.Location)

	res, err = (&Download{Vault: v, ArchiveID: "x", Destination: "x.bin"}).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, "x.bin", res.Location)

	res, err = (&Delete{Vault: v, ArchiveID: "x"}).Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, VerbDelete, res.Verb)
}

func TestRunner_ContinuesPastFailures(t *testing.T) {
	v := &fakeVault{failures: map[string]error{
		"delete b": core.Errorf(core.ErrNotFound, "archive b"),
	}}
	acts, err := New(VerbDelete, v, "photos", []string{"a", "b", "c"})
	require.NoError(t, err)

	report := (&Runner{Concurrency: 1}).Run(context.Background(), acts)

	require.Len(t, report.Items, 3)
	assert.False(t, report.OK())
	assert.Len(t, report.Succeeded(), 2)
	require.Len(t, report.Failed(), 1)
	assert.Equal(t, "b", report.Failed()[0].Target)
	assert.Equal(t, "NOT_FOUND", report.Failed()[0].Code())
	assert.Equal(t, []string{"delete a", "delete b", "delete c"}, v.calls)
}

func TestRunner_KeepsInputOrder(t *testing.T) {
	v := &fakeVault{delay: 10 * time.Millisecond}
	paths := []string{"1", "2", "3", "4", "5", "6"}
	acts, err := New(VerbUpload, v, "photos", paths)
	require.NoError(t, err)

	report := (&Runner{Concurrency: 3, Metrics: metrics.NewRegistry()}).Run(context.Background(), acts)

	require.True(t, report.OK())
	for i, it := range report.Items {
		assert.Equal(t, paths[i], it.Target)
		assert.Equal(t, "id-"+paths[i], it.Result.ArchiveID)
	}
	assert.LessOrEqual(t, v.maxInFlight.Load(), int32(3))
}

func TestRunner_DefaultIsSequential(t *testing.T) {
	v := &fakeVault{delay: 5 * time.Millisecond}
	acts, err := New(VerbUpload, v, "photos", []string{"a", "b", "c"})
	require.NoError(t, err)

	(&Runner{}).Run(context.Background(), acts)
	assert.Equal(t, int32(1), v.maxInFlight.Load())
}

func TestReport_Write(t *testing.T) {
	report := &Report{Items: []Item{
		{Verb: VerbUpload, Target: "a.txt", Result: Result{Verb: VerbUpload, Target: "a.txt", ArchiveID: "id-a"}},
		{Verb: VerbDelete, Target: "b", Err: core.Errorf(core.ErrNotFound, "archive b")},
	}}

	var buf bytes.Buffer
	require.NoError(t, report.Write(&buf))
	out := buf.String()
	assert.Contains(t, out, "uploaded a.txt as id-a")
	assert.Contains(t, out, "NOT_FOUND")
	assert.Contains(t, out, "1 succeeded, 1 failed")
}
