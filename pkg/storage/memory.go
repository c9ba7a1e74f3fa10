package storage

import (
	"context"
	"errors"
	"slices"
	"sync"

	pkgerrors "github.com/absmach/fedround/pkg/errors"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/storage/internal/runs"
)

type inMemoryStorage struct {
	sync.Mutex

	data map[string]any
}

func NewInMemoryStorage() Storage {
	return &inMemoryStorage{
		data: make(map[string]any),
	}
}

func (s *inMemoryStorage) Create(_ context.Context, key string, value any) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[key]; ok {
		return pkgerrors.ErrEntityExists
	}

	s.data[key] = value

	return nil
}

func (s *inMemoryStorage) Get(_ context.Context, key string) (any, error) {
	if key == "" {
		return nil, pkgerrors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if val, ok := s.data[key]; ok {
		return val, nil
	}

	return nil, pkgerrors.ErrNotFound
}

func (s *inMemoryStorage) Update(_ context.Context, key string, value any) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[key]; !ok {
		return pkgerrors.ErrNotFound
	}

	s.data[key] = value

	return nil
}

// List pages over values in key order.
func (s *inMemoryStorage) List(_ context.Context, offset, limit uint64) (result []any, total uint64, err error) {
	s.Lock()
	defer s.Unlock()

	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	total = uint64(len(keys))
	if offset >= total {
		return nil, total, nil
	}

	end := min(offset+limit, total)
	result = make([]any, end-offset)
	for i := offset; i < end; i++ {
		result[i-offset] = s.data[keys[i]]
	}

	return result, total, nil
}

func (s *inMemoryStorage) Delete(_ context.Context, key string) error {
	if key == "" {
		return pkgerrors.ErrEmptyKey
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.data[key]; !ok {
		return pkgerrors.ErrNotFound
	}
	delete(s.data, key)

	return nil
}

type memoryRunRepo struct {
	storage Storage
}

func NewMemoryRunRepository(s Storage) RunRepository {
	return &memoryRunRepo{storage: s}
}

func (r *memoryRunRepo) Save(ctx context.Context, rec fl.RunRecord) error {
	if rec.ID == "" {
		return pkgerrors.ErrInvalidID
	}
	rec = runs.Clone(rec)
	err := r.storage.Update(ctx, rec.ID, rec)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return r.storage.Create(ctx, rec.ID, rec)
	}

	return err
}

func (r *memoryRunRepo) Get(ctx context.Context, id string) (fl.RunRecord, error) {
	data, err := r.storage.Get(ctx, id)
	if err != nil {
		return fl.RunRecord{}, err
	}
	rec, ok := data.(fl.RunRecord)
	if !ok {
		return fl.RunRecord{}, pkgerrors.ErrInvalidData
	}

	return runs.Clone(rec), nil
}

func (r *memoryRunRepo) List(ctx context.Context, offset, limit uint64) ([]fl.RunRecord, uint64, error) {
	const pageSize = 1024

	var all []fl.RunRecord
	for scan := uint64(0); ; scan += pageSize {
		data, _, err := r.storage.List(ctx, scan, pageSize)
		if err != nil {
			return nil, 0, err
		}
		if len(data) == 0 {
			break
		}
		for _, d := range data {
			rec, ok := d.(fl.RunRecord)
			if !ok {
				return nil, 0, pkgerrors.ErrInvalidData
			}
			all = append(all, runs.Clone(rec))
		}
	}

	page, total := runs.Page(all, offset, limit)

	return page, total, nil
}

func (r *memoryRunRepo) Delete(ctx context.Context, id string) error {
	return r.storage.Delete(ctx, id)
}
