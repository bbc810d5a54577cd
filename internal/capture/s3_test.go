package capture

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	lastInput *s3.PutObjectInput
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.lastInput = params
	return &s3.PutObjectOutput{}, nil
}

func TestUploadBase64(t *testing.T) {
	api := &fakeS3{}
	store := NewS3Store(api, "trade-images", "us-east-1", zerolog.Nop())
	store.now = func() time.Time { return time.UnixMilli(1700000000000) }

	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("img"))
	url, err := store.UploadBase64(context.Background(), payload, "entry.png")
	require.NoError(t, err)

	assert.Equal(t, "https://trade-images.s3.us-east-1.amazonaws.com/uploads/1700000000000-entry.png", url)
	require.NotNil(t, api.lastInput)
	assert.Equal(t, "trade-images", *api.lastInput.Bucket)
	assert.Equal(t, "image/png", *api.lastInput.ContentType)
}

func TestUploadBase64InvalidPayload(t *testing.T) {
	store := NewS3Store(&fakeS3{}, "b", "r", zerolog.Nop())
	_, err := store.UploadBase64(context.Background(), "not base64 at all!!!", "x.png")
	assert.Error(t, err)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.UploadBase64(context.Background(), "x", "y.png")
	assert.Error(t, err)
}
