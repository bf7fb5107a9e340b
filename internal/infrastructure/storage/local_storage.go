package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"toolhub/services/conversion-api/internal/config"
)

var errLocalStorageDisabled = errors.New("local storage is not configured; set CONVERSION_LOCAL_STORAGE_PATH to enable")

// LocalStorage keeps blobs on the local filesystem. Useful for development
// and for single-node deployments where the compute tier shares a volume.
type LocalStorage struct {
	basePath string
	log      zerolog.Logger
	disabled bool
}

// NewLocalStorage creates a new local filesystem storage backend.
func NewLocalStorage(cfg *config.Config, log zerolog.Logger) (*LocalStorage, error) {
	logger := log.With().Str("component", "local-storage").Logger()

	basePath := strings.TrimSpace(cfg.LocalStoragePath)
	if basePath == "" {
		logger.Warn().Msg("CONVERSION_LOCAL_STORAGE_PATH is not set; local storage will be disabled")
		return &LocalStorage{
			log:      logger,
			disabled: true,
		}, nil
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}

	storage := &LocalStorage{
		basePath: basePath,
		log:      logger,
	}

	logger.Info().Str("path", basePath).Msg("local storage initialized")
	return storage, nil
}

func (l *LocalStorage) ensureEnabled() error {
	if l.disabled {
		return errLocalStorageDisabled
	}
	return nil
}

func (l *LocalStorage) resolve(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}

// Upload stores a blob under key.
func (l *LocalStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	if err := l.ensureEnabled(); err != nil {
		return err
	}

	fullPath := l.resolve(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, body)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	l.log.Debug().
		Str("key", key).
		Int64("bytes", written).
		Msg("blob written to local storage")

	return nil
}

// Download opens the blob stored under key and sniffs its content type.
func (l *LocalStorage) Download(ctx context.Context, key string) (io.ReadCloser, string, error) {
	if err := l.ensureEnabled(); err != nil {
		return nil, "", err
	}

	fullPath := l.resolve(key)
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("blob not found: %s", key)
		}
		return nil, "", err
	}

	mime, err := mimetype.DetectReader(file)
	if err != nil {
		file.Close()
		return nil, "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		file.Close()
		return nil, "", err
	}

	return file, mime.String(), nil
}

// Delete removes the blob stored under key.
func (l *LocalStorage) Delete(ctx context.Context, key string) error {
	if err := l.ensureEnabled(); err != nil {
		return err
	}
	err := os.Remove(l.resolve(key))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Exists reports whether a blob is stored under key.
func (l *LocalStorage) Exists(ctx context.Context, key string) (bool, error) {
	if err := l.ensureEnabled(); err != nil {
		return false, err
	}
	_, err := os.Stat(l.resolve(key))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
