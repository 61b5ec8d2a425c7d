// Package storage keeps uploaded refund evidence on local disk or S3.
package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// MaxEvidenceBytes caps a single upload.
const MaxEvidenceBytes = 10 << 20

var ErrUnsupportedType = errors.New("unsupported evidence file type")

type PutInput struct {
	Filename    string
	ContentType string
	Size        int64
	// Prefix groups objects, e.g. by refund request id.
	Prefix string
}

type PutResult struct {
	Key string
	URL string
}

type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
	Delete(ctx context.Context, key string) error
}

var allowedExt = map[string]string{
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// EvidenceExt returns the normalised extension and content type of an
// accepted evidence file.
func EvidenceExt(filename string) (ext, contentType string, err error) {
	ext = strings.ToLower(filepath.Ext(filename))
	ct, ok := allowedExt[ext]
	if !ok {
		return "", "", ErrUnsupportedType
	}
	return ext, ct, nil
}

func objectKey(prefix, name string) string {
	prefix = strings.Trim(filepath.ToSlash(prefix), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
