package finreport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Output describes the artefacts written for one report.
type Output struct {
	Path    string
	Size    int64
	PDFPath string
}

// FileStore reads templates from one directory and writes outputs into another.
type FileStore struct {
	templateDir string
	outputDir   string
}

// NewFileStore constructs a store. An empty outputDir falls back to a temp
// directory.
func NewFileStore(templateDir, outputDir string) *FileStore {
	if strings.TrimSpace(outputDir) == "" {
		outputDir = filepath.Join(os.TempDir(), "finreports")
	}
	return &FileStore{templateDir: templateDir, outputDir: outputDir}
}

// OpenTemplate returns the bytes of a template file. The reference must stay
// inside the template directory.
func (s *FileStore) OpenTemplate(_ context.Context, ref string) ([]byte, error) {
	path, err := s.templatePath(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: template file %q missing", ErrConfiguration, ref)
		}
		return nil, fmt.Errorf("finreport: read template %q: %w", ref, err)
	}
	return data, nil
}

func (s *FileStore) templatePath(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: template has no file", ErrConfiguration)
	}
	clean := filepath.Clean(string(filepath.Separator) + ref)
	return filepath.Join(s.templateDir, clean), nil
}

// SaveOutput writes data under a unique name derived from the report id and
// returns the path.
func (s *FileStore) SaveOutput(_ context.Context, reportID int64, ext string, data []byte) (string, error) {
	if err := os.MkdirAll(s.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("finreport: create output dir: %w", err)
	}
	name := fmt.Sprintf("financial-report-%d-%s%s", reportID, uuid.NewString()[:8], ext)
	path := filepath.Join(s.outputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("finreport: write output: %w", err)
	}
	return path, nil
}

// ListTemplateFiles lists .docx files in the template directory.
func (s *FileStore) ListTemplateFiles() ([]string, error) {
	entries, err := os.ReadDir(s.templateDir)
	if err != nil {
		return nil, fmt.Errorf("finreport: list templates: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".docx") {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
