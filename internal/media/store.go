package media

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sections partition stored assets by the catalog they belong to.
const (
	SectionVoting    = "voting"
	SectionGiveaways = "giveaways"
)

var errMissingRoot = errors.New("media: root directory required")

// StoreConfig describes where uploaded assets live on disk.
type StoreConfig struct {
	Root   string
	Logger *zap.Logger
}

// Store persists uploaded cover and header images under a root directory
// and hands back paths relative to that root for persistence and serving.
type Store struct {
	root   string
	logger *zap.Logger
}

// NewStore constructs the asset store and ensures section directories exist.
func NewStore(cfg StoreConfig) (*Store, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, errMissingRoot
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, section := range []string{SectionVoting, SectionGiveaways} {
		if err := os.MkdirAll(filepath.Join(cfg.Root, section), 0o755); err != nil {
			return nil, err
		}
	}
	return &Store{root: cfg.Root, logger: logger}, nil
}

// Root returns the directory assets are served from.
func (s *Store) Root() string {
	return s.root
}

// Save writes an uploaded file into the given section and returns its path
// relative to the store root. Names are prefixed with a fresh UUID so
// re-uploads of the same filename never collide.
func (s *Store) Save(section string, upload *multipart.FileHeader) (string, error) {
	if upload == nil {
		return "", nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s", id.String(), filepath.Base(upload.Filename))
	relative := filepath.ToSlash(filepath.Join(section, name))

	source, err := upload.Open()
	if err != nil {
		return "", err
	}
	defer source.Close()

	destination, err := os.Create(filepath.Join(s.root, section, name))
	if err != nil {
		return "", err
	}
	defer destination.Close()

	if _, err := io.Copy(destination, source); err != nil {
		return "", err
	}
	return relative, nil
}

// Remove deletes stored assets best-effort; missing files and empty paths
// are ignored, other failures are logged and swallowed.
func (s *Store) Remove(paths ...string) {
	for _, relative := range paths {
		if strings.TrimSpace(relative) == "" {
			continue
		}
		full := filepath.Join(s.root, filepath.FromSlash(relative))
		if err := os.Remove(full); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove media asset", zap.String("path", relative), zap.Error(err))
		}
	}
}
