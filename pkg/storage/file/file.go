// Package file stores each run as an indented JSON document with the final
// model kept beside it as a CBOR snapshot.
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

	pkgerrors "github.com/absmach/fedround/pkg/errors"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/storage/internal/runs"
)

const (
	runsDir   = "runs"
	modelsDir = "models"
)

type Repository struct {
	runsDir   string
	modelsDir string
	mu        sync.RWMutex
}

func NewRepository(root string) (*Repository, error) {
	r := &Repository{
		runsDir:   filepath.Join(root, runsDir),
		modelsDir: filepath.Join(root, modelsDir),
	}
	if err := os.MkdirAll(r.runsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create runs directory: %w", err)
	}
	if err := os.MkdirAll(r.modelsDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create models directory: %w", err)
	}

	return r, nil
}

func (r *Repository) Save(_ context.Context, rec fl.RunRecord) error {
	if rec.ID == "" || sanitizeID(rec.ID) != rec.ID {
		return fmt.Errorf("%w: %q", pkgerrors.ErrInvalidID, rec.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	params := rec.FinalParameters
	rec.FinalParameters = nil
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	modelFile := r.modelFile(rec.ID)
	if params != nil {
		blob, err := fl.EncodeParameters(params)
		if err != nil {
			return err
		}
		if err := writeFile(modelFile, blob); err != nil {
			return fmt.Errorf("failed to write model file: %w", err)
		}
	} else if err := os.Remove(modelFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove model file: %w", err)
	}

	if err := writeFile(r.runFile(rec.ID), data); err != nil {
		return fmt.Errorf("failed to write run file: %w", err)
	}

	return nil
}

func (r *Repository) Get(_ context.Context, id string) (fl.RunRecord, error) {
	if sanitizeID(id) != id || id == "" {
		return fl.RunRecord{}, pkgerrors.ErrNotFound
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.load(id)
}

func (r *Repository) List(_ context.Context, offset, limit uint64) ([]fl.RunRecord, uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.runsDir)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read runs directory: %w", err)
	}

	var recs []fl.RunRecord
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		id, ok := strings.CutSuffix(entry.Name(), ".json")
		if !ok {
			continue
		}
		id, ok = strings.CutPrefix(id, "run_")
		if !ok {
			continue
		}
		rec, err := r.load(id)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}

	page, total := runs.Page(recs, offset, limit)

	return page, total, nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	if sanitizeID(id) != id || id == "" {
		return pkgerrors.ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.Remove(r.runFile(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return pkgerrors.ErrNotFound
		}

		return fmt.Errorf("failed to remove run file: %w", err)
	}
	if err := os.Remove(r.modelFile(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove model file: %w", err)
	}

	return nil
}

func (r *Repository) load(id string) (fl.RunRecord, error) {
	data, err := os.ReadFile(r.runFile(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fl.RunRecord{}, pkgerrors.ErrNotFound
		}

		return fl.RunRecord{}, fmt.Errorf("failed to read run file: %w", err)
	}

	var rec fl.RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return fl.RunRecord{}, fmt.Errorf("failed to unmarshal run: %w", err)
	}

	blob, err := os.ReadFile(r.modelFile(id))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fl.RunRecord{}, fmt.Errorf("failed to read model file: %w", err)
	default:
		if rec.FinalParameters, err = fl.DecodeParameters(blob); err != nil {
			return fl.RunRecord{}, err
		}
	}

	return rec, nil
}

func (r *Repository) runFile(id string) string {
	return filepath.Join(r.runsDir, "run_"+id+".json")
}

func (r *Repository) modelFile(id string) string {
	return filepath.Join(r.modelsDir, "model_"+id+".cbor")
}

// writeFile replaces path atomically so readers never observe a partial
// document.
func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmp, path)
}

// sanitizeID keeps only characters that are safe in a file name.
func sanitizeID(id string) string {
	var b strings.Builder
	for _, r := range id {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}

	return b.String()
}
