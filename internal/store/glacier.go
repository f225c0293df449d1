// internal/store/glacier.go
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glacier"
	"github.com/aws/aws-sdk-go-v2/service/glacier/types"
	"github.com/aws/smithy-go"
	"github.com/newthinker/glacier/internal/core"
)

// GlacierAPI is the subset of the Glacier client used by Glacier.
type GlacierAPI interface {
	UploadArchive(ctx context.Context, params *glacier.UploadArchiveInput, optFns ...func(*glacier.Options)) (*glacier.UploadArchiveOutput, error)
	InitiateMultipartUpload(ctx context.Context, params *glacier.InitiateMultipartUploadInput, optFns ...func(*glacier.Options)) (*glacier.InitiateMultipartUploadOutput, error)
	UploadMultipartPart(ctx context.Context, params *glacier.UploadMultipartPartInput, optFns ...func(*glacier.Options)) (*glacier.UploadMultipartPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *glacier.CompleteMultipartUploadInput, optFns ...func(*glacier.Options)) (*glacier.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *glacier.AbortMultipartUploadInput, optFns ...func(*glacier.Options)) (*glacier.AbortMultipartUploadOutput, error)
	DeleteArchive(ctx context.Context, params *glacier.DeleteArchiveInput, optFns ...func(*glacier.Options)) (*glacier.DeleteArchiveOutput, error)
	InitiateJob(ctx context.Context, params *glacier.InitiateJobInput, optFns ...func(*glacier.Options)) (*glacier.InitiateJobOutput, error)
	DescribeJob(ctx context.Context, params *glacier.DescribeJobInput, optFns ...func(*glacier.Options)) (*glacier.DescribeJobOutput, error)
	GetJobOutput(ctx context.Context, params *glacier.GetJobOutputInput, optFns ...func(*glacier.Options)) (*glacier.GetJobOutputOutput, error)
}

// Glacier implements Client on Amazon Glacier.
type Glacier struct {
	api       GlacierAPI
	accountID string
}

// NewGlacier creates a Glacier store from an AWS config. accountID "-" means
// the account owning the credentials.
func NewGlacier(cfg aws.Config, accountID string) *Glacier {
	return NewGlacierWithAPI(glacier.NewFromConfig(cfg), accountID)
}

// NewGlacierWithAPI wraps an existing client.
func NewGlacierWithAPI(api GlacierAPI, accountID string) *Glacier {
	if accountID == "" {
		accountID = "-"
	}
	return &Glacier{api: api, accountID: accountID}
}

func (g *Glacier) account() *string {
	return aws.String(g.accountID)
}

func (g *Glacier) UploadArchive(ctx context.Context, vault, description string, body io.ReadSeeker, treeHash string) (string, error) {
	out, err := g.api.UploadArchive(ctx, &glacier.UploadArchiveInput{
		AccountId:          g.account(),
		VaultName:          aws.String(vault),
		ArchiveDescription: aws.String(description),
		Body:               body,
		Checksum:           aws.String(treeHash),
	})
	if err != nil {
		return "", mapError("uploading archive", err)
	}
	return aws.ToString(out.ArchiveId), nil
}

func (g *Glacier) InitiateMultipartUpload(ctx context.Context, vault, description string, partSize int64) (string, error) {
	out, err := g.api.InitiateMultipartUpload(ctx, &glacier.InitiateMultipartUploadInput{
		AccountId:          g.account(),
		VaultName:          aws.String(vault),
		ArchiveDescription: aws.String(description),
		PartSize:           aws.String(strconv.FormatInt(partSize, 10)),
	})
	if err != nil {
		return "", mapError("initiating multipart upload", err)
	}
	return aws.ToString(out.UploadId), nil
}

func (g *Glacier) UploadPart(ctx context.Context, vault, uploadID string, start, end int64, body io.ReadSeeker, treeHash string) error {
	_, err := g.api.UploadMultipartPart(ctx, &glacier.UploadMultipartPartInput{
		AccountId: g.account(),
		VaultName: aws.String(vault),
		UploadId:  aws.String(uploadID),
		Range:     aws.String(fmt.Sprintf("bytes %d-%d/*", start, end)),
		Body:      body,
		Checksum:  aws.String(treeHash),
	})
	if err != nil {
		return mapError(fmt.Sprintf("uploading part %d-%d", start, end), err)
	}
	return nil
}

func (g *Glacier) CompleteMultipartUpload(ctx context.Context, vault, uploadID string, size int64, treeHash string) (string, error) {
	out, err := g.api.CompleteMultipartUpload(ctx, &glacier.CompleteMultipartUploadInput{
		AccountId:   g.account(),
		VaultName:   aws.String(vault),
		UploadId:    aws.String(uploadID),
		ArchiveSize: aws.String(strconv.FormatInt(size, 10)),
		Checksum:    aws.String(treeHash),
	})
	if err != nil {
		return "", mapError("completing multipart upload", err)
	}
	return aws.ToString(out.ArchiveId), nil
}

func (g *Glacier) AbortMultipartUpload(ctx context.Context, vault, uploadID string) error {
	_, err := g.api.AbortMultipartUpload(ctx, &glacier.AbortMultipartUploadInput{
		AccountId: g.account(),
		VaultName: aws.String(vault),
		UploadId:  aws.String(uploadID),
	})
	if err != nil {
		return mapError("aborting multipart upload", err)
	}
	return nil
}

func (g *Glacier) DeleteArchive(ctx context.Context, vault, archiveID string) error {
	_, err := g.api.DeleteArchive(ctx, &glacier.DeleteArchiveInput{
		AccountId: g.account(),
		VaultName: aws.String(vault),
		ArchiveId: aws.String(archiveID),
	})
	if err != nil {
		return mapError("deleting archive "+archiveID, err)
	}
	return nil
}

func (g *Glacier) InitiateJob(ctx context.Context, vault string, req JobRequest) (string, error) {
	params := &types.JobParameters{
		Type: aws.String(string(req.Kind)),
	}
	if req.SNSTopic != "" {
		params.SNSTopic = aws.String(req.SNSTopic)
	}
	switch req.Kind {
	case core.JobInventory:
		params.Format = aws.String("JSON")
	case core.JobArchiveRetrieval:
		params.ArchiveId = aws.String(req.ArchiveID)
		if req.Tier != "" {
			params.Tier = aws.String(req.Tier)
		}
	}

	out, err := g.api.InitiateJob(ctx, &glacier.InitiateJobInput{
		AccountId:     g.account(),
		VaultName:     aws.String(vault),
		JobParameters: params,
	})
	if err != nil {
		return "", mapError("initiating "+string(req.Kind)+" job", err)
	}
	return aws.ToString(out.JobId), nil
}

func (g *Glacier) DescribeJob(ctx context.Context, vault, jobID string) (JobDescription, error) {
	out, err := g.api.DescribeJob(ctx, &glacier.DescribeJobInput{
		AccountId: g.account(),
		VaultName: aws.String(vault),
		JobId:     aws.String(jobID),
	})
	if err != nil {
		return JobDescription{}, mapError("describing job "+jobID, err)
	}

	desc := JobDescription{
		JobID:         aws.ToString(out.JobId),
		Status:        StatusFromCode(string(out.StatusCode)),
		StatusMessage: aws.ToString(out.StatusMessage),
		TreeHash:      aws.ToString(out.SHA256TreeHash),
	}
	desc.Completed = desc.Status.Terminal()
	if out.Action == types.ActionCodeInventoryRetrieval {
		desc.OutputSize = aws.ToInt64(out.InventorySizeInBytes)
	} else {
		desc.OutputSize = aws.ToInt64(out.ArchiveSizeInBytes)
	}
	return desc, nil
}

func (g *Glacier) GetJobOutput(ctx context.Context, vault, jobID, byteRange string) (io.ReadCloser, error) {
	in := &glacier.GetJobOutputInput{
		AccountId: g.account(),
		VaultName: aws.String(vault),
		JobId:     aws.String(jobID),
	}
	if byteRange != "" {
		in.Range = aws.String(byteRange)
	}
	out, err := g.api.GetJobOutput(ctx, in)
	if err != nil {
		return nil, mapError("fetching output of job "+jobID, err)
	}
	return out.Body, nil
}

// StatusFromCode maps a Glacier status code ("InProgress", "Succeeded",
// "Failed") to a job status.
func StatusFromCode(code string) core.JobStatus {
	switch types.StatusCode(code) {
	case types.StatusCodeSucceeded:
		return core.JobSucceeded
	case types.StatusCodeFailed:
		return core.JobFailed
	default:
		return core.JobInProgress
	}
}

// mapError translates SDK errors into the core taxonomy. Context errors pass
// through so callers can tell cancellation apart from transport failures.
func mapError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ResourceNotFoundException":
			return core.Errorf(core.ErrNotFound, "%s: %s", op, apiErr.ErrorMessage())
		case "InvalidParameterValueException", "MissingParameterValueException":
			return core.Errorf(core.ErrInvalidInput, "%s: %s", op, apiErr.ErrorMessage())
		}
	}
	return core.Errorf(core.ErrTransportFailure, "%s: %w", op, err)
}
