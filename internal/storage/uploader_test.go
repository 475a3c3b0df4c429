package storage

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/ghola/internal/models"
)

type fakePutter struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func testConfig() Config {
	return Config{
		Region:        "us-east-1",
		AccessKey:     "ak",
		SecretKey:     "sk",
		Bucket:        "ghola",
		PublicBaseURL: "https://cdn.example.com/",
	}
}

func TestNewUploaderValidatesConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Bucket = ""
	_, err := NewUploader(cfg)
	require.EqualError(t, err, "s3 bucket is required")

	cfg = testConfig()
	cfg.SecretKey = ""
	_, err = NewUploader(cfg)
	require.EqualError(t, err, "s3 credentials are required")

	up, err := NewUploader(testConfig())
	require.NoError(t, err)
	assert.Equal(t, "generations", up.cfg.Prefix)
}

func TestArchiveUploadsInlineImage(t *testing.T) {
	putter := &fakePutter{}
	up := newUploader(testConfig(), putter)
	up.now = func() time.Time { return time.Date(2025, 3, 7, 12, 0, 0, 0, time.UTC) }

	ref, err := up.Archive(context.Background(), models.InlineImage([]byte{0xff, 0xd8}, "image/jpeg"))
	require.NoError(t, err)

	assert.False(t, ref.IsInline())
	assert.Regexp(t, regexp.MustCompile(`^https://cdn\.example\.com/generations/2025/03/07/[0-9a-f-]{36}\.jpg$`), ref.URL)
	require.Len(t, putter.inputs, 1)
	assert.Equal(t, "ghola", aws.ToString(putter.inputs[0].Bucket))
	assert.Equal(t, "image/jpeg", aws.ToString(putter.inputs[0].ContentType))
	assert.Equal(t, types.ObjectCannedACLPublicRead, putter.inputs[0].ACL)
	assert.Equal(t, []byte{0xff, 0xd8}, putter.bodies[0])
}

func TestArchivePassesURLThrough(t *testing.T) {
	putter := &fakePutter{}
	up := newUploader(testConfig(), putter)

	in := models.URLImage("https://replicate.delivery/out.jpg")
	ref, err := up.Archive(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, in, ref)
	assert.Empty(t, putter.inputs)
}

func TestArchiveKeepsInlineOnFailure(t *testing.T) {
	up := newUploader(testConfig(), &fakePutter{err: errors.New("access denied")})

	in := models.InlineImage([]byte{1}, "image/png")
	ref, err := up.Archive(context.Background(), in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload to s3")
	assert.Equal(t, in, ref)
}

func TestExtensionFromContentType(t *testing.T) {
	assert.Equal(t, ".png", extensionFromContentType("image/PNG"))
	assert.Equal(t, ".jpg", extensionFromContentType("image/jpg"))
	assert.Equal(t, ".webp", extensionFromContentType("image/webp"))
	assert.Equal(t, ".bin", extensionFromContentType("application/octet-stream"))
}
