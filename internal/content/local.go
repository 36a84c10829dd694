package content

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dom/pack-minter/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

var digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// LocalStore is a content-addressed directory: every object is stored under
// the hex SHA3-256 of its bytes and served back at baseURL/<digest>.
type LocalStore struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

func NewLocalStore(dir, baseURL string, logger *zap.Logger) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create content dir: %w", err)
	}
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger.Named("content.local"),
	}, nil
}

func Digest(data []byte) string {
	sum := sha3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *LocalStore) PublishImage(ctx context.Context, data []byte, filename string) (string, error) {
	return s.put(data, filename)
}

func (s *LocalStore) PublishJSON(ctx context.Context, doc any, name string) (string, error) {
	data, err := EncodeJSON(doc)
	if err != nil {
		return "", fmt.Errorf("%w: encode %s: %v", domain.ErrPublish, name, err)
	}
	return s.put(data, metadataFilename(name))
}

func (s *LocalStore) put(data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %s is empty", domain.ErrPublish, filename)
	}
	digest := Digest(data)
	path := filepath.Join(s.dir, digest)

	if existing, err := os.ReadFile(path); err == nil {
		if Digest(existing) == digest {
			return s.baseURL + "/" + digest, nil
		}
		s.logger.Warn("stored object does not match its digest, rewriting",
			zap.String("digest", digest), zap.Int("bytes", len(existing)))
	}
	if err := writeAtomic(s.dir, path, data); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", domain.ErrPublish, filename, err)
	}
	s.logger.Debug("stored", zap.String("file", filename), zap.String("digest", digest))
	return s.baseURL + "/" + digest, nil
}

// writeAtomic writes data to a temp file in dir and renames it onto path, so
// path never holds a partial object.
func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Get returns the object stored under digest.
func (s *LocalStore) Get(digest string) ([]byte, error) {
	if !digestPattern.MatchString(digest) {
		return nil, fs.ErrNotExist
	}
	data, err := os.ReadFile(filepath.Join(s.dir, digest))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fs.ErrNotExist
	}
	return data, err
}
