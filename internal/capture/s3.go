// Package capture stores entry/exit screenshots pushed by sync clients.
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

var dataURLPrefix = regexp.MustCompile(`^data:image/\w+;base64,`)

type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads captured images to a bucket and returns their public
// object URL.
type S3Store struct {
	client S3API
	bucket string
	region string
	log    zerolog.Logger
	now    func() time.Time
}

func NewS3Store(client S3API, bucket, region string, log zerolog.Logger) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		region: region,
		log:    log.With().Str("component", "capture").Logger(),
		now:    time.Now,
	}
}

func (s *S3Store) UploadBase64(ctx context.Context, data, fileName string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(dataURLPrefix.ReplaceAllString(data, ""))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	key := fmt.Sprintf("uploads/%d-%s", s.now().UnixMilli(), fileName)
	contentType := "image/png"
	if idx := strings.LastIndex(fileName, "."); idx >= 0 {
		contentType = "image/" + fileName[idx+1:]
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(raw),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	s.log.Debug().Str("key", key).Int("bytes", len(raw)).Msg("image stored")
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}

// Disabled rejects uploads; used when no bucket is configured.
type Disabled struct{}

func (Disabled) UploadBase64(ctx context.Context, data, fileName string) (string, error) {
	return "", errors.New("image capture not configured")
}
