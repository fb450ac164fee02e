package objectstore

import (
	"context"
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_Unit_PutGetListDelete(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.PutObject(ctx, "reports", "runs/r1/a.jsonl", []byte("a")))
	require.NoError(t, s.PutObject(ctx, "reports", "runs/r1/b.jsonl", []byte("b")))
	require.NoError(t, s.PutObject(ctx, "reports", "runs/r2/c.jsonl", []byte("c")))

	data, err := s.GetObject(ctx, "reports", "runs/r1/b.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "b", string(data))

	keys, err := s.ListPrefix(ctx, "reports", "runs/r1/")
	require.NoError(t, err)
	assert.Equal(t, []string{"runs/r1/a.jsonl", "runs/r1/b.jsonl"}, keys)

	require.NoError(t, s.DeleteObject(ctx, "reports", "runs/r1/a.jsonl"))
	require.NoError(t, s.DeleteObject(ctx, "reports", "runs/r1/a.jsonl"))

	_, err = s.GetObject(ctx, "reports", "runs/r1/a.jsonl")
	var coded *Error
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, CodeObjectNotFound, coded.Code)
	assert.False(t, coded.Retryable)
}

func TestLocalStore_Unit_RequiresBucket(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStore(t.TempDir())

	err := s.PutObject(ctx, "", "k", nil)
	var coded *Error
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, CodeBucketNotFound, coded.Code)

	keys, err := s.ListPrefix(ctx, "missing", "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalStore_Unit_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := NewLocalStore(t.TempDir())
	assert.ErrorIs(t, s.PutObject(ctx, "b", "k", nil), context.Canceled)
}

func TestS3Client_Unit_ConfigValidation(t *testing.T) {
	_, err := NewS3Client(S3Config{})
	var coded *Error
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, CodeEndpointUnreachable, coded.Code)

	_, err = NewS3Client(S3Config{EndpointURL: "http://localhost:9000"})
	require.True(t, errors.As(err, &coded))
	assert.Equal(t, CodeAuthInvalid, coded.Code)

	c, err := NewS3Client(S3Config{EndpointURL: "https://minio.local:9000", AccessKeyID: "k", SecretAccessKey: "s"})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestClassifyError_Unit(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{minio.ErrorResponse{Code: "NoSuchKey"}, CodeObjectNotFound},
		{minio.ErrorResponse{Code: "AccessDenied"}, CodePermissionDenied},
		{minio.ErrorResponse{Code: "SignatureDoesNotMatch"}, CodeAuthInvalid},
		{errors.New("dial tcp: connection refused"), CodeEndpointUnreachable},
		{errors.New("context deadline exceeded"), CodeTimeout},
		{errors.New("boom"), CodeWriteFailed},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, classifyError(tc.err).Code, tc.err.Error())
	}
}
