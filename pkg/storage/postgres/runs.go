package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/fedround/pkg/errors"
	"github.com/absmach/fedround/pkg/fl"
)

type runRepo struct {
	db *Database
}

func NewRunRepository(db *Database) RunRepository {
	return &runRepo{db: db}
}

type dbRun struct {
	ID              string     `db:"id"`
	Name            string     `db:"name"`
	Status          string     `db:"status"`
	Error           *string    `db:"error"`
	Config          []byte     `db:"config"`
	History         []byte     `db:"history"`
	TotalEpsilon    float64    `db:"total_epsilon"`
	TotalDelta      float64    `db:"total_delta"`
	Privacy         []byte     `db:"privacy"`
	FinalParameters []byte     `db:"final_parameters"`
	Baseline        []byte     `db:"baseline"`
	Resources       []byte     `db:"resources"`
	StartedAt       time.Time  `db:"started_at"`
	FinishedAt      *time.Time `db:"finished_at"`
}

const runColumns = `id, name, status, error, config, history, total_epsilon, total_delta, privacy, final_parameters, baseline, resources, started_at, finished_at`

func (r *runRepo) Save(ctx context.Context, rec fl.RunRecord) error {
	if rec.ID == "" {
		return pkgerrors.ErrInvalidID
	}

	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	history, err := json.Marshal(rec.History)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	privacy, err := jsonBytes(rec.Privacy)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	baseline, err := jsonBytes(rec.Baseline)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	resources, err := jsonBytes(rec.Resources)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	var params []byte
	if rec.FinalParameters != nil {
		if params, err = fl.EncodeParameters(rec.FinalParameters); err != nil {
			return err
		}
	}

	query := `INSERT INTO runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			config = EXCLUDED.config,
			history = EXCLUDED.history,
			total_epsilon = EXCLUDED.total_epsilon,
			total_delta = EXCLUDED.total_delta,
			privacy = EXCLUDED.privacy,
			final_parameters = EXCLUDED.final_parameters,
			baseline = EXCLUDED.baseline,
			resources = EXCLUDED.resources,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at`

	_, err = r.db.ExecContext(ctx, query,
		rec.ID, rec.Name, string(rec.Status), nullString(rec.Error),
		cfg, history, rec.Budget.TotalEpsilon, rec.Budget.TotalDelta,
		privacy, params, baseline, resources, rec.StartedAt.UTC(), nullTime(rec.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}

	return nil
}

func (r *runRepo) Get(ctx context.Context, id string) (fl.RunRecord, error) {
	var row dbRun
	err := r.db.GetContext(ctx, &row, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.RunRecord{}, pkgerrors.ErrNotFound
		}

		return fl.RunRecord{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return r.toRecord(row)
}

func (r *runRepo) List(ctx context.Context, offset, limit uint64) ([]fl.RunRecord, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM runs`); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	var rows []dbRun
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at, id LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &rows, query, int64(limit), int64(offset)); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	recs := make([]fl.RunRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := r.toRecord(row)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}

	return recs, total, nil
}

func (r *runRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.ErrNotFound
	}

	return nil
}

func (r *runRepo) toRecord(row dbRun) (fl.RunRecord, error) {
	rec := fl.RunRecord{
		ID:        row.ID,
		Name:      row.Name,
		Status:    fl.RunStatus(row.Status),
		Budget:    fl.PrivacyBudget{TotalEpsilon: row.TotalEpsilon, TotalDelta: row.TotalDelta},
		StartedAt: row.StartedAt.UTC(),
	}
	if row.Error != nil {
		rec.Error = *row.Error
	}
	if row.FinishedAt != nil {
		rec.FinishedAt = row.FinishedAt.UTC()
	}
	if err := json.Unmarshal(row.Config, &rec.Config); err != nil {
		return fl.RunRecord{}, fmt.Errorf("unmarshal error: %w", err)
	}
	if err := json.Unmarshal(row.History, &rec.History); err != nil {
		return fl.RunRecord{}, fmt.Errorf("unmarshal error: %w", err)
	}
	if err := jsonUnmarshal(row.Privacy, &rec.Privacy); err != nil {
		return fl.RunRecord{}, fmt.Errorf("unmarshal error: %w", err)
	}
	if err := jsonUnmarshal(row.Baseline, &rec.Baseline); err != nil {
		return fl.RunRecord{}, fmt.Errorf("unmarshal error: %w", err)
	}
	if err := jsonUnmarshal(row.Resources, &rec.Resources); err != nil {
		return fl.RunRecord{}, fmt.Errorf("unmarshal error: %w", err)
	}
	if len(row.FinalParameters) > 0 {
		params, err := fl.DecodeParameters(row.FinalParameters)
		if err != nil {
			return fl.RunRecord{}, err
		}
		rec.FinalParameters = params
	}

	return rec, nil
}
