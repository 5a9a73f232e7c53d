package repos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	m "urs/data/models"
	q "urs/data/queries"

	_ "modernc.org/sqlite"
)

// SQLite is the embedded store, used for local caching and for tests
type SQLite struct {
	db *sql.DB
}

func GetSQLiteConnection(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store needs a file path")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening sqlite database %s: %w", path, err)
	}

	// one connection, an in memory database only lives as long as its connection
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error connecting to sqlite database %s: %w", path, err)
	}

	return &SQLite{db}, nil
}

func (s *SQLite) Migrate(ctx context.Context) error {
	for _, stmt := range q.Statements(q.QueryHelper.Schema.SQLite) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("error applying sqlite schema: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// named converts an argument map into sql.Named values, sorted so statements are deterministic
func named(args map[string]any) []any {
	res := make([]any, 0, len(args))
	for _, k := range slices.Sorted(maps.Keys(args)) {
		res = append(res, sql.Named(k, args[k]))
	}
	return res
}

func (s *SQLite) GetMetadata(ctx context.Context, symbol, source string) (*m.SymbolMetadata, error) {
	var row metadataRow
	err := s.db.QueryRowContext(ctx, q.Get(q.QueryHelper.Select.MetadataBySymbol), named(map[string]any{"symbol": symbol, "source": source})...).
		Scan(&row.Symbol, &row.Source, &row.LastRefreshed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query metadata by symbol (%s): %w", symbol, err)
	}
	return row.toModel()
}

func (s *SQLite) SavePrices(ctx context.Context, source string, series m.PriceSeries, refreshed time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback() // no-op once committed

	var ra int64
	if len(series.Points) > 0 {
		stmt, err := tx.PrepareContext(ctx, q.Get(q.QueryHelper.Insert.Price))
		if err != nil {
			return 0, fmt.Errorf("error preparing price upsert: %w", err)
		}
		defer stmt.Close()

		for _, p := range series.Points {
			res, err := stmt.ExecContext(ctx, named(priceArgs(series.Symbol, source, p))...)
			if err != nil {
				return 0, fmt.Errorf("error upserting prices for %s: %w", series.Symbol, err)
			}
			n, _ := res.RowsAffected()
			ra += n
		}
	}

	if _, err := tx.ExecContext(ctx, q.Get(q.QueryHelper.Insert.Metadata), named(metadataArgs(series.Symbol, source, refreshed))...); err != nil {
		return 0, fmt.Errorf("error updating last refreshed for %s: %w", series.Symbol, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing prices for %s: %w", series.Symbol, err)
	}
	return ra, nil
}

func (s *SQLite) GetPrices(ctx context.Context, symbol, source string, start, end time.Time) ([]m.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, q.Get(q.QueryHelper.Select.PricesBySymbol), named(priceRangeArgs(symbol, source, start, end))...)
	if err != nil {
		return nil, fmt.Errorf("unable to query prices by symbol (%s): %w", symbol, err)
	}
	defer rows.Close()

	var res []m.PricePoint
	for rows.Next() {
		var row priceRow
		if err := rows.Scan(&row.TradeDate, &row.AdjustedClose); err != nil {
			return nil, fmt.Errorf("error scanning price row for %s: %w", symbol, err)
		}
		p, err := row.toModel()
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (s *SQLite) InsertRun(ctx context.Context, run *m.RunHistory) error {
	if _, err := s.db.ExecContext(ctx, q.Get(q.QueryHelper.Insert.Run), named(runArgs(run))...); err != nil {
		return fmt.Errorf("error inserting run %s: %w", run.Id, err)
	}
	return nil
}

func (s *SQLite) GetRun(ctx context.Context, id string) (*m.RunHistory, error) {
	var row runRow
	err := s.db.QueryRowContext(ctx, q.Get(q.QueryHelper.Select.RunById), named(map[string]any{"id": id})...).Scan(
		&row.Id, &row.Source, &row.StartDate, &row.EndDate, &row.SymbolCount,
		&row.Status, &row.ErrorMessage, &row.StartedAt, &row.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to query run %s: %w", id, err)
	}
	return row.toModel()
}

func (s *SQLite) MarkRunSuccess(ctx context.Context, id string) error {
	return s.updateRun(ctx, id, q.QueryHelper.Update.RunSuccess, runSuccessArgs(id))
}

func (s *SQLite) MarkRunFailure(ctx context.Context, id string, errorMessage string) error {
	return s.updateRun(ctx, id, q.QueryHelper.Update.RunFailure, runFailureArgs(id, errorMessage))
}

func (s *SQLite) updateRun(ctx context.Context, id, path string, args map[string]any) error {
	res, err := s.db.ExecContext(ctx, q.Get(path), named(args)...)
	if err != nil {
		return fmt.Errorf("error updating run %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func (s *SQLite) SaveMedianReturns(ctx context.Context, runId string, ranking []m.RankedReturn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	insert := q.Get(q.QueryHelper.Insert.MedianReturn)
	for i, r := range ranking {
		if _, err := tx.ExecContext(ctx, insert, named(medianReturnArgs(runId, i+1, r))...); err != nil {
			return fmt.Errorf("error saving median returns for run %s: %w", runId, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) GetMedianReturns(ctx context.Context, runId string) ([]m.RankedReturn, error) {
	rows, err := s.db.QueryContext(ctx, q.Get(q.QueryHelper.Select.MedianReturnsByRun), named(map[string]any{"run_id": runId})...)
	if err != nil {
		return nil, fmt.Errorf("unable to query median returns for run %s: %w", runId, err)
	}
	defer rows.Close()

	var res []m.RankedReturn
	for rows.Next() {
		var row medianReturnRow
		if err := rows.Scan(&row.Symbol, &row.MedianReturn); err != nil {
			return nil, fmt.Errorf("error scanning median return for run %s: %w", runId, err)
		}
		res = append(res, row.toModel())
	}
	return res, rows.Err()
}

var _ Store = (*SQLite)(nil)
