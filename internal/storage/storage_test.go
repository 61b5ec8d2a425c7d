package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appcfg "github.com/NateGarrisonREI1/admin-console-sub007/internal/config"
)

func TestLocalPutAndDelete(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, "/evidence/")

	res, err := l.Put(context.Background(), strings.NewReader("%PDF-1.4"), PutInput{Filename: "Receipt.PDF", Prefix: "rr-1"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Key, "rr-1/"))
	assert.True(t, strings.HasSuffix(res.Key, ".pdf"))
	assert.Equal(t, "/evidence/"+res.Key, res.URL)

	b, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(res.Key)))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(b))

	require.NoError(t, l.Delete(context.Background(), res.Key))
	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(res.Key)))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalRejectsUnsupportedType(t *testing.T) {
	l := NewLocal(t.TempDir(), "/evidence")
	_, err := l.Put(context.Background(), strings.NewReader("x"), PutInput{Filename: "run.exe"})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestLocalRejectsOversize(t *testing.T) {
	dir := t.TempDir()
	l := NewLocal(dir, "/evidence")
	_, err := l.Put(context.Background(), bytes.NewReader(make([]byte, MaxEvidenceBytes+1)), PutInput{Filename: "a.png"})
	assert.Error(t, err)

	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

type fakeObjects struct {
	put *s3.PutObjectInput
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.put = in
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) DeleteObject(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3PutKeysUnderPrefix(t *testing.T) {
	api := &fakeObjects{}
	s := &S3{Client: api, Bucket: "b", Prefix: "refund-evidence", PublicBaseURL: "https://cdn.example.com"}

	res, err := s.Put(context.Background(), strings.NewReader("img"), PutInput{Filename: "shot.webp", Prefix: "rr-9", Size: 3})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Key, "refund-evidence/rr-9/"))
	assert.Equal(t, "https://cdn.example.com/"+res.Key, res.URL)
	assert.Equal(t, "image/webp", *api.put.ContentType)
	assert.Equal(t, int64(3), *api.put.ContentLength)
}

func TestNewValidatesS3Config(t *testing.T) {
	_, err := New(context.Background(), appcfg.StorageConfig{Driver: "s3"})
	assert.Error(t, err)

	s, err := New(context.Background(), appcfg.StorageConfig{Driver: "local", LocalDir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)
}
