// Package file provides file-based persistence implementation for workflows, runs, schedules and webhooks.
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

	"github.com/dukex/stepflow/pkg/persistence"
)

const (
	workflowsDir = "workflows"
	versionsDir  = "versions"
	runsDir      = "runs"
	runLogsDir   = "run_logs"
	schedulesDir = "schedules"
	webhooksDir  = "webhooks"
)

var errInvalidID = errors.New("id contains invalid characters")

// Persistence implements the persistence.Persistence interface using the
// file system: one JSON document per record under the root directory.
type Persistence struct {
	store *store

	workflowRepo *WorkflowRepository
	runRepo      *RunRepository
	scheduleRepo *ScheduleRepository
	webhookRepo  *WebhookRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	s := &store{root: strings.Replace(root, "file://", "", 1)}

	return &Persistence{
		store:        s,
		workflowRepo: &WorkflowRepository{store: s},
		runRepo:      &RunRepository{store: s},
		scheduleRepo: &ScheduleRepository{store: s},
		webhookRepo:  &WebhookRepository{store: s},
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.store.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

func (fp *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return fp.scheduleRepo
}

func (fp *Persistence) WebhookRepository() persistence.WebhookRepository {
	return fp.webhookRepo
}

// store serializes access to the document tree. Repositories hold the lock
// across read-modify-write sequences so they are atomic within the process.
type store struct {
	root string
	mu   sync.RWMutex
}

func validateID(id string) error {
	if id == "" {
		return errors.New("id cannot be empty")
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", errInvalidID, id)
	}

	return nil
}

func (s *store) path(dir, id string) string {
	return filepath.Join(s.root, dir, id+".json")
}

// read decodes a document into v and reports whether it exists.
func (s *store) read(dir, id string, v any) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}

	body, err := os.ReadFile(s.path(dir, id)) // #nosec G304 -- id is validated above
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return true, nil
}

func (s *store) write(dir, id string, v any) error {
	if err := validateID(id); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Join(s.root, dir), 0750); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	// Write then rename so readers never observe a partial document.
	tmp := s.path(dir, id) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	if err := os.Rename(tmp, s.path(dir, id)); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	return nil
}

// remove deletes a document and reports whether it existed.
func (s *store) remove(dir, id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}

	err := os.Remove(s.path(dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to delete %s/%s: %w", dir, id, err)
	}

	return true, nil
}

// readAll decodes every document of a directory, keeping those accepted by keep.
func readAll[T any](s *store, dir string, keep func(*T) bool) ([]*T, error) {
	files, err := fs.Glob(os.DirFS(filepath.Join(s.root, dir)), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	records := make([]*T, 0, len(files))

	for _, file := range files {
		var record T

		found, err := s.read(dir, strings.TrimSuffix(file, ".json"), &record)
		if err != nil {
			return nil, err
		}

		if found && (keep == nil || keep(&record)) {
			records = append(records, &record)
		}
	}

	return records, nil
}
