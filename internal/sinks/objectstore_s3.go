package sinks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store is the object-store binding for the immutable fan-out, modeled on
// kernel/internal/audit/s3_archiver.go's uploader usage, generalized from
// "always PutObject" to the put-if-absent-and-verify contract the spec
// requires for tamper evidence.
type S3Store struct {
	bucket   string
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3Store constructs an S3Store. Region/credentials come from the
// standard AWS environment, exactly as in the teacher's archiver.
func NewS3Store(ctx context.Context, bucket string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket required")
	}
	cfg, err := awsConfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3Store{
		bucket:   bucket,
		client:   client,
		uploader: manager.NewUploader(client),
	}, nil
}

// PutIfAbsent writes body under key unless an object already exists there,
// in which case it fetches and returns the existing bytes for the caller to
// compare (the fan-out treats a byte mismatch as tampering).
func (s *S3Store) PutIfAbsent(ctx context.Context, key string, body []byte, metadata map[string]string) ([]byte, bool, error) {
	getOut, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		defer getOut.Body.Close()
		existing, readErr := io.ReadAll(getOut.Body)
		if readErr != nil {
			return nil, true, fmt.Errorf("read existing object %s: %w", key, readErr)
		}
		return existing, true, nil
	}

	var nsk *s3types.NoSuchKey
	if !errors.As(err, &nsk) {
		// Some S3-compatible providers return a generic 404 instead of NoSuchKey;
		// only treat a clear "not found" as absence, everything else is a real error.
		var apiErr interface{ ErrorCode() string }
		if !(errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound") {
			return nil, false, fmt.Errorf("head/get existing object %s: %w", key, err)
		}
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(body),
		ContentType:          aws.String("application/json; charset=utf-8"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
		Metadata:             metadata,
	})
	if err != nil {
		return nil, false, fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil, false, nil
}
