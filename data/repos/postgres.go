package repos

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	m "urs/data/models"
	q "urs/data/queries"
)

type Postgres struct {
	db *pgxpool.Pool
}

func GetPostgresConnection(ctx context.Context, connectionString string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("error parsing pgx connection string: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("error making new pgx pool: %w", err)
	}

	return &Postgres{pool}, nil
}

func (pg *Postgres) Migrate(ctx context.Context) error {
	for _, stmt := range q.Statements(q.QueryHelper.Schema.Postgres) {
		if _, err := pg.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("error applying postgres schema: %w", err)
		}
	}
	return nil
}

func (pg *Postgres) Ping(ctx context.Context) error {
	return pg.db.Ping(ctx)
}

func (pg *Postgres) Close() error {
	pg.db.Close()
	return nil
}

func Query[T any](ctx context.Context, pg *Postgres, query string, args pgx.NamedArgs) ([]*T, error) {
	rows, err := pg.db.Query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("unable to query: %w", err)
	}
	defer rows.Close()

	res, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("error occured while collecting rows in query: %w", err)
	}

	result := make([]*T, len(res))
	for i := range res {
		result[i] = &res[i]
	}

	return result, nil
}

// QuerySingle returns nil without an error when nothing matched
func QuerySingle[T any](ctx context.Context, pg *Postgres, query string, args pgx.NamedArgs) (*T, error) {
	res, err := Query[T](ctx, pg, query, args)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, nil
	}
	if len(res) > 1 {
		return nil, fmt.Errorf("multiple results found")
	}

	return res[0], nil
}

func (pg *Postgres) GetMetadata(ctx context.Context, symbol, source string) (*m.SymbolMetadata, error) {
	args := pgx.NamedArgs{"symbol": symbol, "source": source}
	row, err := QuerySingle[metadataRow](ctx, pg, q.Get(q.QueryHelper.Select.MetadataBySymbol), args)
	if err != nil {
		return nil, fmt.Errorf("unable to query metadata by symbol (%s): %w", symbol, err)
	}
	if row == nil {
		return nil, nil
	}
	return row.toModel()
}

// SavePrices upserts the series and its refresh marker in one transaction
func (pg *Postgres) SavePrices(ctx context.Context, source string, series m.PriceSeries, refreshed time.Time) (int64, error) {
	tx, err := pg.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) // no-op once committed

	batch := &pgx.Batch{}
	insert := q.Get(q.QueryHelper.Insert.Price)
	for _, p := range series.Points {
		batch.Queue(insert, pgx.NamedArgs(priceArgs(series.Symbol, source, p)))
	}

	var ra int64
	if batch.Len() > 0 {
		br := tx.SendBatch(ctx, batch)
		for range series.Points {
			ct, err := br.Exec()
			if err != nil {
				br.Close()
				return 0, fmt.Errorf("error upserting prices for %s: %w", series.Symbol, err)
			}
			ra += ct.RowsAffected()
		}
		if err := br.Close(); err != nil {
			return 0, fmt.Errorf("error closing price batch for %s: %w", series.Symbol, err)
		}
	}

	args := pgx.NamedArgs(metadataArgs(series.Symbol, source, refreshed))
	if _, err := tx.Exec(ctx, q.Get(q.QueryHelper.Insert.Metadata), args); err != nil {
		return 0, fmt.Errorf("error updating last refreshed for %s: %w", series.Symbol, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("error committing prices for %s: %w", series.Symbol, err)
	}
	return ra, nil
}

func (pg *Postgres) GetPrices(ctx context.Context, symbol, source string, start, end time.Time) ([]m.PricePoint, error) {
	args := pgx.NamedArgs(priceRangeArgs(symbol, source, start, end))
	rows, err := Query[priceRow](ctx, pg, q.Get(q.QueryHelper.Select.PricesBySymbol), args)
	if err != nil {
		return nil, fmt.Errorf("unable to query prices by symbol (%s): %w", symbol, err)
	}

	res := make([]m.PricePoint, 0, len(rows))
	for _, r := range rows {
		p, err := r.toModel()
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, nil
}

func (pg *Postgres) InsertRun(ctx context.Context, run *m.RunHistory) error {
	if _, err := pg.db.Exec(ctx, q.Get(q.QueryHelper.Insert.Run), pgx.NamedArgs(runArgs(run))); err != nil {
		return fmt.Errorf("error inserting run %s: %w", run.Id, err)
	}
	return nil
}

func (pg *Postgres) GetRun(ctx context.Context, id string) (*m.RunHistory, error) {
	row, err := QuerySingle[runRow](ctx, pg, q.Get(q.QueryHelper.Select.RunById), pgx.NamedArgs{"id": id})
	if err != nil {
		return nil, fmt.Errorf("unable to query run %s: %w", id, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return row.toModel()
}

func (pg *Postgres) MarkRunSuccess(ctx context.Context, id string) error {
	return pg.updateRun(ctx, id, q.QueryHelper.Update.RunSuccess, runSuccessArgs(id))
}

func (pg *Postgres) MarkRunFailure(ctx context.Context, id string, errorMessage string) error {
	return pg.updateRun(ctx, id, q.QueryHelper.Update.RunFailure, runFailureArgs(id, errorMessage))
}

func (pg *Postgres) updateRun(ctx context.Context, id, path string, args map[string]any) error {
	ct, err := pg.db.Exec(ctx, q.Get(path), pgx.NamedArgs(args))
	if err != nil {
		return fmt.Errorf("error updating run %s: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func (pg *Postgres) SaveMedianReturns(ctx context.Context, runId string, ranking []m.RankedReturn) error {
	if len(ranking) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	insert := q.Get(q.QueryHelper.Insert.MedianReturn)
	for i, r := range ranking {
		batch.Queue(insert, pgx.NamedArgs(medianReturnArgs(runId, i+1, r)))
	}

	if err := pg.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("error saving median returns for run %s: %w", runId, err)
	}
	return nil
}

func (pg *Postgres) GetMedianReturns(ctx context.Context, runId string) ([]m.RankedReturn, error) {
	args := pgx.NamedArgs{"run_id": runId}
	rows, err := Query[medianReturnRow](ctx, pg, q.Get(q.QueryHelper.Select.MedianReturnsByRun), args)
	if err != nil {
		return nil, fmt.Errorf("unable to query median returns for run %s: %w", runId, err)
	}

	res := make([]m.RankedReturn, len(rows))
	for i, r := range rows {
		res[i] = r.toModel()
	}
	return res, nil
}

var _ Store = (*Postgres)(nil)
