package storage

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/rishabh1721/WanderLust/internal/config"
)

// FileInfo describes a stored attachment.
type FileInfo struct {
	URL      string
	Path     string
	Size     int64
	MimeType string
	FileName string
}

// BlobStore persists message attachments. The local implementation writes to
// disk; swapping in an object store only needs this interface.
type BlobStore interface {
	Save(ctx context.Context, reader io.Reader, fileSize int64, fileName string, mimeType string) (*FileInfo, error)
}

// LocalBlobStore implements BlobStore on the local filesystem.
type LocalBlobStore struct {
	basePath string
	baseURL  string // URL prefix under which basePath is served
}

// NewLocalBlobStore creates a LocalBlobStore, ensuring the storage directory
// exists.
func NewLocalBlobStore(cfg config.StorageConfig, baseURL string) (BlobStore, error) {
	if err := os.MkdirAll(cfg.LocalPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %q: %w", cfg.LocalPath, err)
	}
	return &LocalBlobStore{
		basePath: cfg.LocalPath,
		baseURL:  baseURL,
	}, nil
}

// Save writes the file under a generated unique name, keeping the original
// extension (or inferring one from the mime type).
func (s *LocalBlobStore) Save(ctx context.Context, reader io.Reader, fileSize int64, fileName string, mimeType string) (*FileInfo, error) {
	ext := filepath.Ext(fileName)
	if ext == "" {
		extensions, _ := mime.ExtensionsByType(mimeType)
		if len(extensions) > 0 {
			ext = extensions[0]
		}
	}
	uniqueFileName := uuid.New().String() + ext
	dstPath := filepath.Join(s.basePath, uniqueFileName)

	dst, err := os.Create(dstPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %q: %w", dstPath, err)
	}
	defer dst.Close()

	written, err := io.Copy(dst, reader)
	if err != nil {
		os.Remove(dstPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if fileSize > 0 && written != fileSize {
		os.Remove(dstPath)
		return nil, fmt.Errorf("file size mismatch: expected %d, wrote %d", fileSize, written)
	}

	fileURL := strings.TrimSuffix(s.baseURL, "/") + "/" + url.PathEscape(uniqueFileName)

	return &FileInfo{
		URL:      fileURL,
		Path:     dstPath,
		Size:     written,
		MimeType: mimeType,
		FileName: fileName,
	}, nil
}
