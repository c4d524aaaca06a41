package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

const resultsDirName = "results"

// Store keeps uploads and their results as flat files:
//
//	<uploadDir>/<analysisID><ext>
//	<uploadDir>/results/<analysisID>.json
type Store struct {
	uploadDir  string
	datasetDir string
	samplesDir string
}

func New(uploadDir, datasetDir, samplesDir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(uploadDir, resultsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Store{uploadDir: uploadDir, datasetDir: datasetDir, samplesDir: samplesDir}, nil
}

// SaveUpload stores raw under a fresh analysis id and returns the id and the
// stored file name.
func (s *Store) SaveUpload(raw []byte, ext string) (string, string, error) {
	id := uuid.NewString()
	filename := id + sanitizeExt(ext)
	if err := writeFileAtomic(filepath.Join(s.uploadDir, filename), raw); err != nil {
		return "", "", fmt.Errorf("failed to save upload: %w", err)
	}
	return id, filename, nil
}

func (s *Store) SaveResult(id string, data []byte) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid analysis id %q: %w", id, err)
	}
	if err := writeFileAtomic(s.resultPath(id), data); err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	return nil
}

// LoadResult returns the stored result JSON or ErrNotFound.
func (s *Store) LoadResult(id string) ([]byte, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	data, err := os.ReadFile(s.resultPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// UploadPath resolves a stored upload by file name. Names with any path
// component are rejected.
func (s *Store) UploadPath(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", ErrNotFound
	}
	path := filepath.Join(s.uploadDir, filename)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// ListDataset returns the entry names of the train and test splits.
func (s *Store) ListDataset() (train, test []string, err error) {
	if train, err = listDir(filepath.Join(s.datasetDir, "train")); err != nil {
		return nil, nil, err
	}
	if test, err = listDir(filepath.Join(s.datasetDir, "test")); err != nil {
		return nil, nil, err
	}
	return train, test, nil
}

func (s *Store) ListSamples() ([]string, error) {
	return listDir(s.samplesDir)
}

func (s *Store) resultPath(id string) string {
	return filepath.Join(s.uploadDir, resultsDirName, id+".json")
}

// listDir returns sorted entry names; a missing directory yields an empty list.
func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// imageExts are the only extensions uploads are stored under, so a stored file
// is never served with a scriptable content type.
var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

func sanitizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	if !imageExts[ext] {
		return ""
	}
	return ext
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
