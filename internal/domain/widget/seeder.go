package widget

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"
	"go.uber.org/zap"
)

// ManifestPattern matches seed manifests below the seed directory.
const ManifestPattern = "**/*.widget.yaml"

// Manifest is a seed file describing one widget.
type Manifest struct {
	Name       string         `yaml:"name"`
	Code       string         `yaml:"code,omitempty"`
	CodeFile   string         `yaml:"code_file,omitempty"`
	CustomData map[string]any `yaml:"custom_data,omitempty"`
	Width      float64        `yaml:"width,omitempty"`
	Height     float64        `yaml:"height,omitempty"`
}

// ParseManifest reads the manifest at path. A code_file is resolved
// relative to the manifest and returned as the second value.
func ParseManifest(path string) (Record, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, "", err
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Record{}, "", fmt.Errorf("failed to parse YAML: %w", err)
	}
	if m.Name == "" {
		return Record{}, "", fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if (m.Code == "") == (m.CodeFile == "") {
		return Record{}, "", fmt.Errorf("%w: exactly one of code or code_file is required", ErrInvalid)
	}

	codeFile := ""
	if m.CodeFile != "" {
		codeFile = m.CodeFile
		if !filepath.IsAbs(codeFile) {
			codeFile = filepath.Join(filepath.Dir(path), codeFile)
		}
		src, err := os.ReadFile(codeFile)
		if err != nil {
			return Record{}, "", fmt.Errorf("read code file: %w", err)
		}
		m.Code = string(src)
	}

	return Record{
		Name:       m.Name,
		Code:       m.Code,
		CustomData: m.CustomData,
		Width:      m.Width,
		Height:     m.Height,
		Source:     path,
	}, codeFile, nil
}

// SeedResult counts manifests processed by Seed.
type SeedResult struct {
	Loaded int
	Failed int
}

// Seeder loads prebuilt widgets from manifests on disk.
type Seeder struct {
	manager *Manager
	dir     string
	logger  *zap.Logger

	mu    sync.RWMutex
	files map[string]string // code file -> manifest
}

// NewSeeder creates a seeder for dir.
func NewSeeder(manager *Manager, dir string, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Seeder{
		manager: manager,
		dir:     dir,
		logger:  logger,
		files:   make(map[string]string),
	}
}

// Dir returns the seed directory.
func (s *Seeder) Dir() string {
	return s.dir
}

// Seed loads every manifest under the seed directory. A missing directory
// is not an error.
func (s *Seeder) Seed(ctx context.Context) (SeedResult, error) {
	var res SeedResult
	if _, err := os.Stat(s.dir); errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("seed directory not found", zap.String("dir", s.dir))
		return res, nil
	}

	matches, err := doublestar.Glob(os.DirFS(s.dir), ManifestPattern)
	if err != nil {
		return res, fmt.Errorf("glob manifests: %w", err)
	}

	for _, rel := range matches {
		path := filepath.Join(s.dir, filepath.FromSlash(rel))
		if _, err := s.Load(ctx, path); err != nil {
			s.logger.Warn("failed to seed widget", zap.String("manifest", rel), zap.Error(err))
			res.Failed++
			continue
		}
		res.Loaded++
	}

	s.logger.Info("seeding complete",
		zap.String("dir", s.dir),
		zap.Int("loaded", res.Loaded),
		zap.Int("failed", res.Failed))
	return res, nil
}

// Load creates or refreshes the widget described by the manifest at path.
func (s *Seeder) Load(ctx context.Context, path string) (*State, error) {
	rec, codeFile, err := ParseManifest(path)
	if err != nil {
		return nil, err
	}

	if codeFile != "" {
		s.mu.Lock()
		s.files[filepath.Clean(codeFile)] = path
		s.mu.Unlock()
	}

	st, created, err := s.manager.Upsert(ctx, rec)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("widget seeded",
		zap.String("widget_id", st.ID),
		zap.String("manifest", path),
		zap.Bool("created", created))
	return st, nil
}

// ManifestFor maps a changed file to the manifest that must be reloaded.
func (s *Seeder) ManifestFor(path string) (string, bool) {
	path = filepath.Clean(path)
	if IsManifest(path) {
		return path, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	manifest, ok := s.files[path]
	return manifest, ok
}

// IsManifest reports whether path names a seed manifest.
func IsManifest(path string) bool {
	ok, _ := doublestar.Match("*.widget.yaml", filepath.Base(path))
	return ok
}
