package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"gopkg.in/yaml.v3"
)

// Supported on-disk formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Store implements ports.MapStore using the local filesystem.
// Each map is one file named after its ID.
type Store struct {
	BasePath string
	Format   string
}

var _ ports.MapStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithFormat selects FormatJSON (default) or FormatYAML.
func WithFormat(format string) Option {
	return func(s *Store) {
		if format == FormatYAML || format == "yml" {
			s.Format = FormatYAML
		} else {
			s.Format = FormatJSON
		}
	}
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".arbor/maps".
func New(basePath string, opts ...Option) *Store {
	if basePath == "" {
		basePath = filepath.Join(".arbor", "maps")
	}
	s := &Store{BasePath: basePath, Format: FormatJSON}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ext() string {
	return "." + s.Format
}

func (s *Store) path(mapID string) (string, error) {
	if mapID == "" {
		return "", fmt.Errorf("mapID cannot be empty")
	}
	if strings.ContainsAny(mapID, `/\`) || mapID == "." || mapID == ".." {
		return "", fmt.Errorf("invalid map id %q", mapID)
	}
	return filepath.Join(s.BasePath, mapID+s.ext()), nil
}

func (s *Store) marshal(root *domain.Node) ([]byte, error) {
	if s.Format == FormatYAML {
		return yaml.Marshal(root)
	}
	return json.MarshalIndent(root, "", "  ")
}

// Save writes the tree atomically: to a temp file in the same directory,
// fsynced, then renamed over the destination.
func (s *Store) Save(ctx context.Context, mapID string, root *domain.Node) error {
	destPath, err := s.path(mapID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure map directory: %w", err)
	}

	data, err := s.marshal(root)
	if err != nil {
		return fmt.Errorf("failed to marshal map: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+mapID+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	// Windows cannot rename an open file.
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Windows cannot rename over an existing file either.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing map file for overwrite: %w", err)
		}
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Load reads the map file. Files written by hand may use the legacy
// "attribute" key and numeric attribute values.
func (s *Store) Load(ctx context.Context, mapID string) (*domain.Node, error) {
	filePath, err := s.path(mapID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrMapNotFound
		}
		return nil, fmt.Errorf("failed to read map file: %w", err)
	}

	return DecodeFile(data, s.Format)
}

// DecodeFile parses a JSON or YAML map document.
func DecodeFile(data []byte, format string) (*domain.Node, error) {
	var raw any
	switch format {
	case FormatYAML, "yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidTree, err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidTree, err)
		}
	}
	return domain.DecodeTree(raw)
}

// Delete removes the map file.
func (s *Store) Delete(ctx context.Context, mapID string) error {
	filePath, err := s.path(mapID)
	if err != nil {
		return err
	}
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete map file: %w", err)
	}
	return nil
}

// List returns the IDs of all stored maps, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list maps: %w", err)
	}

	ids := []string{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "tmp-") || filepath.Ext(name) != s.ext() {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, s.ext()))
	}
	sort.Strings(ids)
	return ids, nil
}
