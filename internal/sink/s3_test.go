// internal/sink/s3_test.go
package sink

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

type fakeS3 struct {
	objects map[string]string
	putErr  error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = string(data)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if _, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3Sink_ImplementsSink(t *testing.T) {
	var _ Sink = (*S3Sink)(nil)
}

func TestS3Sink_Parse(t *testing.T) {
	tests := []struct {
		prefix  string
		dest    string
		bucket  string
		key     string
		wantErr bool
	}{
		{"", "s3://backups/inv.json", "backups", "inv.json", false},
		{"glacier", "s3://backups/inv.json", "backups", "glacier/inv.json", false},
		{"glacier/", "s3://backups/a/b.bin", "backups", "glacier/a/b.bin", false},
		{"", "s3://backups", "", "", true},
		{"", "s3://backups/dir/", "", "", true},
	}

	for _, tt := range tests {
		s := NewS3WithAPI(nil, tt.prefix)
		bucket, key, err := s.parse(tt.dest)
		if (err != nil) != tt.wantErr {
			t.Errorf("parse(%q) error = %v, wantErr %v", tt.dest, err, tt.wantErr)
			continue
		}
		if bucket != tt.bucket || key != tt.key {
			t.Errorf("parse(%q) with prefix %q = %s/%s, want %s/%s", tt.dest, tt.prefix, bucket, key, tt.bucket, tt.key)
		}
	}
}

func TestS3Sink_Place(t *testing.T) {
	api := &fakeS3{objects: map[string]string{}}
	s := NewS3WithAPI(api, "")
	src := writeTemp(t, t.TempDir(), "inventory")

	got, err := s.Place(context.Background(), src, "s3://backups/inv.json", true)
	if err != nil {
		t.Fatalf("Place: %v", err)
	}
	if got != "s3://backups/inv.json" {
		t.Errorf("unexpected location %s", got)
	}
	if api.objects["backups/inv.json"] != "inventory" {
		t.Error("object not uploaded")
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should be removed after upload")
	}
}

func TestS3Sink_PlaceFailureKeepsSource(t *testing.T) {
	api := &fakeS3{objects: map[string]string{}, putErr: errors.New("access denied")}
	s := NewS3WithAPI(api, "")
	src := writeTemp(t, t.TempDir(), "inventory")

	if _, err := s.Place(context.Background(), src, "s3://backups/inv.json", true); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(src); err != nil {
		t.Error("source must be kept when upload fails")
	}
}

func TestS3Sink_PlaceRefusesExisting(t *testing.T) {
	api := &fakeS3{objects: map[string]string{"backups/inv.json": "old"}}
	s := NewS3WithAPI(api, "")
	src := writeTemp(t, t.TempDir(), "new")

	_, err := s.Place(context.Background(), src, "s3://backups/inv.json", false)
	if !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestMux_Routes(t *testing.T) {
	local := NewLocalFS(t.TempDir())
	m := &Mux{Local: local}

	if _, err := m.Exists(context.Background(), "s3://backups/x"); err == nil {
		t.Error("expected error without S3 sink")
	}

	m.S3 = NewS3WithAPI(&fakeS3{objects: map[string]string{"backups/x": "1"}}, "")
	exists, err := m.Exists(context.Background(), "s3://backups/x")
	if err != nil || !exists {
		t.Errorf("expected s3 object to exist, got %v, %v", exists, err)
	}

	exists, err = m.Exists(context.Background(), "local.json")
	if err != nil || exists {
		t.Errorf("expected local file to be absent, got %v, %v", exists, err)
	}
}
