package badger

import (
	"context"
	"fmt"

	pkgerrors "github.com/absmach/fedround/pkg/errors"
	"github.com/absmach/fedround/pkg/fl"
	"github.com/absmach/fedround/pkg/storage/internal/runs"
	"github.com/golang/snappy"
)

const runPrefix = "run:"

type runRepo struct {
	db *Database
}

func NewRunRepository(db *Database) RunRepository {
	return &runRepo{db: db}
}

// Records are stored as snappy-compressed CBOR.
func (r *runRepo) Save(ctx context.Context, rec fl.RunRecord) error {
	if rec.ID == "" {
		return pkgerrors.ErrInvalidID
	}
	data, err := fl.EncodeRecord(rec)
	if err != nil {
		return err
	}

	return r.db.set([]byte(runPrefix+rec.ID), snappy.Encode(nil, data))
}

func (r *runRepo) Get(ctx context.Context, id string) (fl.RunRecord, error) {
	val, err := r.db.get([]byte(runPrefix + id))
	if err != nil {
		return fl.RunRecord{}, err
	}

	return decode(val)
}

func (r *runRepo) List(ctx context.Context, offset, limit uint64) ([]fl.RunRecord, uint64, error) {
	values, err := r.db.scanPrefix([]byte(runPrefix))
	if err != nil {
		return nil, 0, err
	}
	recs := make([]fl.RunRecord, 0, len(values))
	for _, val := range values {
		rec, err := decode(val)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}

	page, total := runs.Page(recs, offset, limit)

	return page, total, nil
}

func (r *runRepo) Delete(ctx context.Context, id string) error {
	return r.db.delete([]byte(runPrefix + id))
}

func decode(val []byte) (fl.RunRecord, error) {
	data, err := snappy.Decode(nil, val)
	if err != nil {
		return fl.RunRecord{}, fmt.Errorf("%w: %w", pkgerrors.ErrInvalidData, err)
	}

	return fl.DecodeRecord(data)
}
