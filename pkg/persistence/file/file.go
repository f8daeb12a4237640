// Package file provides file-based persistence for work orders, templates, stations
// and operator sessions.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jigged/shopfloor/pkg/persistence"
)

const (
	workOrdersDir = "work_orders"
	templatesDir  = "templates"
	stationsDir   = "stations"
	sessionsDir   = "sessions"
)

// Persistence implements the persistence.Persistence interface using the file system.
// One JSON document is written per record.
type Persistence struct {
	root       string
	mu         sync.Mutex
	workOrders *WorkOrderRepository
	templates  *TemplateRepository
	stations   *StationRepository
	sessions   *SessionRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{root: cleanRoot}
	p.workOrders = &WorkOrderRepository{store: p}
	p.templates = &TemplateRepository{store: p}
	p.stations = &StationRepository{store: p}
	p.sessions = &SessionRepository{store: p}

	return p
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

func (fp *Persistence) WorkOrders() persistence.WorkOrderRepository {
	return fp.workOrders
}

func (fp *Persistence) Templates() persistence.TemplateRepository {
	return fp.templates
}

func (fp *Persistence) Stations() persistence.StationRepository {
	return fp.stations
}

func (fp *Persistence) Sessions() persistence.SessionRepository {
	return fp.sessions
}

func (fp *Persistence) recordPath(dir, id string) string {
	return filepath.Clean(path.Join(fp.root, dir, id+".json"))
}

// read decodes the record into out; it returns false when the file is missing.
func (fp *Persistence) read(dir, id string, out any) (bool, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return false, nil
	}

	body, err := os.ReadFile(fp.recordPath(dir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}

		return false, fmt.Errorf("failed to read %s/%s: %w", dir, id, err)
	}

	err = json.Unmarshal(body, out)
	if err != nil {
		return false, fmt.Errorf("failed to unmarshal %s/%s: %w", dir, id, err)
	}

	return true, nil
}

// write stores the record through a temporary file and rename so readers never
// observe a partially written document.
func (fp *Persistence) write(dir, id string, record any) error {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("invalid record id %q", id)
	}

	err := os.MkdirAll(path.Join(fp.root, dir), 0750)
	if err != nil {
		return fmt.Errorf("failed to create %s directory: %w", dir, err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", dir, id, err)
	}

	target := fp.recordPath(dir, id)
	tmp := target + ".tmp"

	err = os.WriteFile(tmp, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", dir, id, err)
	}

	err = os.Rename(tmp, target)
	if err != nil {
		return fmt.Errorf("failed to commit %s/%s: %w", dir, id, err)
	}

	return nil
}

func (fp *Persistence) exists(dir, id string) bool {
	_, err := os.Stat(fp.recordPath(dir, id))

	return err == nil
}

// ids lists the record ids stored under dir.
func (fp *Persistence) ids(dir string) ([]string, error) {
	root := os.DirFS(path.Join(fp.root, dir))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s files: %w", dir, err)
	}

	ids := make([]string, 0, len(jsonFiles))
	for _, file := range jsonFiles {
		ids = append(ids, strings.TrimSuffix(file, ".json"))
	}

	return ids, nil
}
