package sqlite

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
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	Status          string         `db:"status"`
	Error           sql.NullString `db:"error"`
	Config          []byte         `db:"config"`
	History         []byte         `db:"history"`
	TotalEpsilon    float64        `db:"total_epsilon"`
	TotalDelta      float64        `db:"total_delta"`
	Privacy         []byte         `db:"privacy"`
	FinalParameters []byte         `db:"final_parameters"`
	Baseline        []byte         `db:"baseline"`
	Resources       []byte         `db:"resources"`
	StartedAt       time.Time      `db:"started_at"`
	FinishedAt      sql.NullTime   `db:"finished_at"`
}

const runColumns = `id, name, status, error, config, history, total_epsilon, total_delta, privacy, final_parameters, baseline, resources, started_at, finished_at`

func (r *runRepo) Save(ctx context.Context, rec fl.RunRecord) error {
	if rec.ID == "" {
		return pkgerrors.ErrInvalidID
	}
	row, err := toDBRun(rec)
	if err != nil {
		return err
	}

	query := `INSERT INTO runs (` + runColumns + `)
		VALUES (:id, :name, :status, :error, :config, :history, :total_epsilon, :total_delta, :privacy, :final_parameters, :baseline, :resources, :started_at, :finished_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			error = excluded.error,
			config = excluded.config,
			history = excluded.history,
			total_epsilon = excluded.total_epsilon,
			total_delta = excluded.total_delta,
			privacy = excluded.privacy,
			final_parameters = excluded.final_parameters,
			baseline = excluded.baseline,
			resources = excluded.resources,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at`

	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("%w: %w", ErrSave, err)
	}

	return nil
}

func (r *runRepo) Get(ctx context.Context, id string) (fl.RunRecord, error) {
	var row dbRun
	err := r.db.GetContext(ctx, &row, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.RunRecord{}, pkgerrors.ErrNotFound
		}

		return fl.RunRecord{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return toRecord(row)
}

func (r *runRepo) List(ctx context.Context, offset, limit uint64) ([]fl.RunRecord, uint64, error) {
	var total uint64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM runs`); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	var rows []dbRun
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at, id LIMIT ? OFFSET ?`
	if err := r.db.SelectContext(ctx, &rows, query, limit, offset); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	recs := make([]fl.RunRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := toRecord(row)
		if err != nil {
			return nil, 0, err
		}
		recs = append(recs, rec)
	}

	return recs, total, nil
}

func (r *runRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return pkgerrors.ErrNotFound
	}

	return nil
}

func toDBRun(rec fl.RunRecord) (dbRun, error) {
	cfg, err := json.Marshal(rec.Config)
	if err != nil {
		return dbRun{}, fmt.Errorf("marshal error: %w", err)
	}
	history, err := json.Marshal(rec.History)
	if err != nil {
		return dbRun{}, fmt.Errorf("marshal error: %w", err)
	}
	privacy, err := jsonBytes(rec.Privacy)
	if err != nil {
		return dbRun{}, fmt.Errorf("marshal error: %w", err)
	}
	baseline, err := jsonBytes(rec.Baseline)
	if err != nil {
		return dbRun{}, fmt.Errorf("marshal error: %w", err)
	}
	resources, err := jsonBytes(rec.Resources)
	if err != nil {
		return dbRun{}, fmt.Errorf("marshal error: %w", err)
	}
	var params []byte
	if rec.FinalParameters != nil {
		if params, err = fl.EncodeParameters(rec.FinalParameters); err != nil {
			return dbRun{}, err
		}
	}

	return dbRun{
		ID:              rec.ID,
		Name:            rec.Name,
		Status:          string(rec.Status),
		Error:           sql.NullString{String: rec.Error, Valid: rec.Error != ""},
		Config:          cfg,
		History:         history,
		TotalEpsilon:    rec.Budget.TotalEpsilon,
		TotalDelta:      rec.Budget.TotalDelta,
		Privacy:         privacy,
		FinalParameters: params,
		Baseline:        baseline,
		Resources:       resources,
		StartedAt:       rec.StartedAt.UTC(),
		FinishedAt:      sql.NullTime{Time: rec.FinishedAt.UTC(), Valid: !rec.FinishedAt.IsZero()},
	}, nil
}

func toRecord(row dbRun) (fl.RunRecord, error) {
	rec := fl.RunRecord{
		ID:        row.ID,
		Name:      row.Name,
		Status:    fl.RunStatus(row.Status),
		Error:     row.Error.String,
		Budget:    fl.PrivacyBudget{TotalEpsilon: row.TotalEpsilon, TotalDelta: row.TotalDelta},
		StartedAt: row.StartedAt.UTC(),
	}
	if row.FinishedAt.Valid {
		rec.FinishedAt = row.FinishedAt.Time.UTC()
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

func jsonBytes[T any](v map[string]T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, v)
}
