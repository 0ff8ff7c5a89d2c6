// Package file provides file-based persistence for workflows, executions and records.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dukex/autoflow/pkg/persistence"
)

// Persistence implements persistence.Persistence using one JSON file per entity.
type Persistence struct {
	root string
	mu   *sync.RWMutex

	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	recordRepo    *RecordRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)
	store := &jsonStore{root: cleanRoot}
	mu := &sync.RWMutex{}

	return &Persistence{
		root:          cleanRoot,
		mu:            mu,
		workflowRepo:  &WorkflowRepository{store: store, mu: mu},
		executionRepo: &ExecutionRepository{store: store, mu: mu},
		recordRepo:    &RecordRepository{store: store, mu: mu},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

//nolint:ireturn // repository accessors return interfaces
func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

//nolint:ireturn // repository accessors return interfaces
func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

//nolint:ireturn // repository accessors return interfaces
func (fp *Persistence) RecordRepository() persistence.RecordRepository {
	return fp.recordRepo
}

// jsonStore reads and writes <root>/<collection>/<id>.json documents.
type jsonStore struct {
	root string
}

var errNotExist = errors.New("document does not exist")

func (s *jsonStore) path(collection, id string) string {
	return filepath.Join(s.root, filepath.FromSlash(collection), filepath.Base(id)+".json")
}

func (s *jsonStore) read(collection, id string, v any) error {
	body, err := os.ReadFile(s.path(collection, id))
	if err != nil {
		if os.IsNotExist(err) {
			return errNotExist
		}

		return fmt.Errorf("failed to read %s/%s: %w", collection, id, err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s/%s: %w", collection, id, err)
	}

	return nil
}

func (s *jsonStore) write(collection, id string, v any) error {
	dir := filepath.Join(s.root, filepath.FromSlash(collection))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", collection, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", collection, id, err)
	}

	tmp := s.path(collection, id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", collection, id, err)
	}

	return os.Rename(tmp, s.path(collection, id))
}

func (s *jsonStore) remove(collection, id string) error {
	err := os.Remove(s.path(collection, id))
	if err != nil && os.IsNotExist(err) {
		return errNotExist
	}

	return err
}

// ids lists the document ids of a collection. A missing collection is empty.
func (s *jsonStore) ids(collection string) ([]string, error) {
	dir := filepath.Join(s.root, filepath.FromSlash(collection))

	matches, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, strings.TrimSuffix(m, ".json"))
	}

	return ids, nil
}
