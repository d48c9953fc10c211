package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
)

// objectAPI is the subset of *s3.Client used by S3AssetTransport.
type objectAPI interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig  = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) objectAPI {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Options configures an S3-compatible bucket used as asset storage.
type S3Options struct {
	Bucket       string
	Region       string
	BaseEndpoint string
	AccessKey    string
	SecretKey    string
}

// S3AssetTransport moves asset bytes directly to and from a bucket.
type S3AssetTransport struct {
	api    objectAPI
	bucket string
}

func NewS3AssetTransport(ctx context.Context, o S3Options) (*S3AssetTransport, error) {
	if o.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(o.Region)}
	if o.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(o.AccessKey, o.SecretKey, "")))
	}

	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	api := newS3ClientFromConfig(cfg, func(so *s3.Options) {
		if o.BaseEndpoint != "" {
			so.BaseEndpoint = aws.String(o.BaseEndpoint)
			so.UsePathStyle = true
		}
	})
	return &S3AssetTransport{api: api, bucket: o.Bucket}, nil
}

// DownloadAsset streams the object named filename.
func (t *S3AssetTransport) DownloadAsset(ctx context.Context, filename string) (io.ReadCloser, error) {
	out, err := t.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(filename),
	})
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", filename, classifyS3(err))
	}
	return out.Body, nil
}

// UploadAsset stores r under a fresh key that keeps the extension of name.
func (t *S3AssetTransport) UploadAsset(ctx context.Context, name string, r io.Reader) (string, error) {
	key := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	_, err := t.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(t.bucket),
		Key:    aws.String(key),
		Body:   r,
	})
	if err != nil {
		return "", fmt.Errorf("uploading %s: %w", name, classifyS3(err))
	}
	return key, nil
}

// classifyS3 maps SDK failures onto the client error taxonomy so retry
// decisions work the same for both transports.
func classifyS3(err error) error {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return &ClientError{StatusCode: 404, Message: nsk.ErrorMessage()}
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorFault() {
		case smithy.FaultServer:
			return &ServerError{StatusCode: 500, Message: ae.ErrorMessage()}
		case smithy.FaultClient:
			if ae.ErrorCode() == "AccessDenied" || ae.ErrorCode() == "InvalidAccessKeyId" {
				return fmt.Errorf("%w: %s", ErrUnauthorized, ae.ErrorMessage())
			}
			return &ClientError{StatusCode: 400, Message: ae.ErrorMessage()}
		}
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	return &NetworkError{Op: "s3", Err: err}
}
