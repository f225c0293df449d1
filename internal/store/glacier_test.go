// internal/store/glacier_test.go
package store

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/glacier/types"
	"github.com/aws/smithy-go"
	"github.com/newthinker/glacier/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI records the last inputs and returns canned responses.
type fakeAPI struct {
	GlacierAPI

	err         error
	jobInput    *glacier.InitiateJobInput
	partInput   *glacier.UploadMultipartPartInput
	outputInput *glacier.GetJobOutputInput
	describe    *glacier.DescribeJobOutput
}

func (f *fakeAPI) UploadArchive(ctx context.Context, in *glacier.UploadArchiveInput, _ ...func(*glacier.Options)) (*glacier.UploadArchiveOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &glacier.UploadArchiveOutput{ArchiveId: aws.String("archive-" + aws.ToString(in.ArchiveDescription))}, nil
}

func (f *fakeAPI) UploadMultipartPart(ctx context.Context, in *glacier.UploadMultipartPartInput, _ ...func(*glacier.Options)) (*glacier.UploadMultipartPartOutput, error) {
	f.partInput = in
	return &glacier.UploadMultipartPartOutput{}, f.err
}

func (f *fakeAPI) DeleteArchive(ctx context.Context, in *glacier.DeleteArchiveInput, _ ...func(*glacier.Options)) (*glacier.DeleteArchiveOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &glacier.DeleteArchiveOutput{}, nil
}

func (f *fakeAPI) InitiateJob(ctx context.Context, in *glacier.InitiateJobInput, _ ...func(*glacier.Options)) (*glacier.InitiateJobOutput, error) {
	f.jobInput = in
	if f.err != nil {
		return nil, f.err
	}
	return &glacier.InitiateJobOutput{JobId: aws.String("job-1")}, nil
}

func (f *fakeAPI) DescribeJob(ctx context.Context, in *glacier.DescribeJobInput, _ ...func(*glacier.Options)) (*glacier.DescribeJobOutput, error) {
	return f.describe, f.err
}

func (f *fakeAPI) GetJobOutput(ctx context.Context, in *glacier.GetJobOutputInput, _ ...func(*glacier.Options)) (*glacier.GetJobOutputOutput, error) {
	f.outputInput = in
	return &glacier.GetJobOutputOutput{Body: io.NopCloser(strings.NewReader("data"))}, nil
}

func TestGlacier_ImplementsClient(t *testing.T) {
	var _ Client = (*Glacier)(nil)
}

func TestGlacier_DefaultAccount(t *testing.T) {
	g := NewGlacierWithAPI(&fakeAPI{}, "")
	assert.Equal(t, "-", g.accountID)
}

func TestGlacier_UploadArchive(t *testing.T) {
	g := NewGlacierWithAPI(&fakeAPI{}, "-")
	id, err := g.UploadArchive(context.Background(), "archives", "report.pdf", strings.NewReader("x"), "abc")
	require.NoError(t, err)
	assert.Equal(t, "archive-report.pdf", id)
}

func TestGlacier_UploadPartRange(t *testing.T) {
	api := &fakeAPI{}
	g := NewGlacierWithAPI(api, "-")

	err := g.UploadPart(context.Background(), "archives", "up-1", 1048576, 2097151, strings.NewReader("x"), "abc")
	require.NoError(t, err)
	assert.Equal(t, "bytes 1048576-2097151/*", aws.ToString(api.partInput.Range))
	assert.Equal(t, "abc", aws.ToString(api.partInput.Checksum))
}

func TestGlacier_InitiateJobParameters(t *testing.T) {
	api := &fakeAPI{}
	g := NewGlacierWithAPI(api, "-")
	ctx := context.Background()

	_, err := g.InitiateJob(ctx, "archives", JobRequest{Kind: core.JobInventory, SNSTopic: "arn:topic"})
	require.NoError(t, err)
	assert.Equal(t, "inventory-retrieval", aws.ToString(api.jobInput.JobParameters.Type))
	assert.Equal(t, "JSON", aws.ToString(api.jobInput.JobParameters.Format))
	assert.Equal(t, "arn:topic", aws.ToString(api.jobInput.JobParameters.SNSTopic))
	assert.Nil(t, api.jobInput.JobParameters.ArchiveId)

	_, err = g.InitiateJob(ctx, "archives", JobRequest{Kind: core.JobArchiveRetrieval, ArchiveID: "a-1", Tier: "Bulk"})
	require.NoError(t, err)
	assert.Equal(t, "a-1", aws.ToString(api.jobInput.JobParameters.ArchiveId))
	assert.Equal(t, "Bulk", aws.ToString(api.jobInput.JobParameters.Tier))
	assert.Nil(t, api.jobInput.JobParameters.SNSTopic)
}

func TestGlacier_DescribeJob(t *testing.T) {
	api := &fakeAPI{describe: &glacier.DescribeJobOutput{
		JobId:                aws.String("job-1"),
		Action:               types.ActionCodeInventoryRetrieval,
		StatusCode:           types.StatusCodeSucceeded,
		InventorySizeInBytes: aws.Int64(512),
	}}
	g := NewGlacierWithAPI(api, "-")

	desc, err := g.DescribeJob(context.Background(), "archives", "job-1")
	require.NoError(t, err)
	assert.Equal(t, core.JobSucceeded, desc.Status)
	assert.True(t, desc.Completed)
	assert.Equal(t, int64(512), desc.OutputSize)
}

func TestGlacier_GetJobOutputRange(t *testing.T) {
	api := &fakeAPI{}
	g := NewGlacierWithAPI(api, "-")

	body, err := g.GetJobOutput(context.Background(), "archives", "job-1", "bytes=0-99")
	require.NoError(t, err)
	defer body.Close()
	assert.Equal(t, "bytes=0-99", aws.ToString(api.outputInput.Range))

	_, err = g.GetJobOutput(context.Background(), "archives", "job-1", "")
	require.NoError(t, err)
	assert.Nil(t, api.outputInput.Range)
}

func TestStatusFromCode(t *testing.T) {
	assert.Equal(t, core.JobInProgress, StatusFromCode("InProgress"))
	assert.Equal(t, core.JobSucceeded, StatusFromCode("Succeeded"))
	assert.Equal(t, core.JobFailed, StatusFromCode("Failed"))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want *core.Error
	}{
		{"not found", &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "no archive"}, core.ErrNotFound},
		{"bad parameter", &smithy.GenericAPIError{Code: "InvalidParameterValueException"}, core.ErrInvalidInput},
		{"throttled", &smithy.GenericAPIError{Code: "ThrottlingException"}, core.ErrTransportFailure},
		{"network", errors.New("connection reset"), core.ErrTransportFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewGlacierWithAPI(&fakeAPI{err: tt.err}, "-")
			err := g.DeleteArchive(context.Background(), "archives", "a-1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMapError_ContextPassesThrough(t *testing.T) {
	g := NewGlacierWithAPI(&fakeAPI{err: context.Canceled}, "-")
	err := g.DeleteArchive(context.Background(), "archives", "a-1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, core.ErrTransportFailure)
}
