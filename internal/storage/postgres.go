package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/example/roadside-dispatch/internal/models"
)

// PostgresStore implements RequestStore on lib/pq. The assignment CAS is a
// conditional UPDATE on the version column inside one transaction with the
// quote insert.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

const requestCols = `id, booker_id, provider_id, vehicle_id, vehicle_class, service_type, status, priority, latitude, longitude, notes, source, version, created_at, updated_at`

func (p *PostgresStore) CreateRequest(ctx context.Context, r *models.ServiceRequest) error {
	_, err := p.db.ExecContext(ctx, `INSERT INTO service_requests(`+requestCols+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		r.ID, r.BookerID, nullable(r.ProviderID), nullable(r.VehicleID), r.VehicleClass, r.ServiceType,
		r.Status, r.Priority, r.Location.Lat, r.Location.Lon, r.Notes, r.Source, r.Version, r.CreatedAt, r.UpdatedAt)
	return err
}

func (p *PostgresStore) GetRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+requestCols+` FROM service_requests WHERE id=$1`, id)
	return scanRequest(row)
}

func (p *PostgresStore) AssignProvider(ctx context.Context, requestID string, expectedVersion int64, providerID string, quote *models.ServiceQuote) error {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE service_requests
		SET provider_id=$1, status=$2, version=version+1, updated_at=now()
		WHERE id=$3 AND version=$4 AND status NOT IN ($5,$6)`,
		providerID, models.StatusDispatched, requestID, expectedVersion,
		models.StatusCompleted, models.StatusCancelled)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a lost race from a terminal request.
		var status models.RequestStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM service_requests WHERE id=$1`, requestID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if status.Terminal() {
			return ErrTerminalState
		}
		return ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `UPDATE service_quotes SET status=$1 WHERE request_id=$2 AND status=$3`,
		models.QuoteRejected, requestID, models.QuotePending); err != nil {
		return err
	}
	if err := insertQuote(ctx, tx, quote); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *PostgresStore) UpdateRequestStatus(ctx context.Context, id string, from, to models.RequestStatus) (*models.ServiceRequest, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE service_requests
		SET status=$1, version=version+1, updated_at=now() WHERE id=$2 AND status=$3`, to, id, from)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := p.GetRequest(ctx, id); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrStatusConflict
	}
	return p.GetRequest(ctx, id)
}

func (p *PostgresStore) CancelRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE service_requests
		SET status=$1, version=version+1, updated_at=now()
		WHERE id=$2 AND status NOT IN ($3,$4)`,
		models.StatusCancelled, id, models.StatusCompleted, models.StatusCancelled)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := p.GetRequest(ctx, id); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrTerminalState
	}
	return p.GetRequest(ctx, id)
}

const quoteCols = `id, request_id, base_price, per_km_rate, distance_km, time_estimate_minutes, dynamic_total, status, valid_until, spare_parts, spare_parts_total, platform_fee, tax_amount, is_final, provider_payout, expenses_amount, platform_profit, payment_ref, settled, created_at`

func (p *PostgresStore) GetQuote(ctx context.Context, id string) (*models.ServiceQuote, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+quoteCols+` FROM service_quotes WHERE id=$1`, id)
	return scanQuote(row)
}

func (p *PostgresStore) ActiveQuote(ctx context.Context, requestID string) (*models.ServiceQuote, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+quoteCols+` FROM service_quotes
		WHERE request_id=$1 AND status<>$2 ORDER BY created_at DESC LIMIT 1`,
		requestID, models.QuoteRejected)
	return scanQuote(row)
}

func (p *PostgresStore) UpdateQuote(ctx context.Context, q *models.ServiceQuote) error {
	parts, err := json.Marshal(q.SpareParts)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE service_quotes SET
		dynamic_total=$1, status=$2, valid_until=$3, spare_parts=$4, spare_parts_total=$5,
		platform_fee=$6, tax_amount=$7, is_final=$8, provider_payout=$9, expenses_amount=$10,
		platform_profit=$11, payment_ref=$12, settled=$13 WHERE id=$14`,
		q.DynamicTotal, q.Status, q.ValidUntil, parts, q.SparePartsTotal,
		q.PlatformFee, q.TaxAmount, q.IsFinal, q.ProviderPayout, q.ExpensesAmount,
		q.PlatformProfit, q.PaymentRef, q.Settled, q.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) UpdateQuoteStatus(ctx context.Context, id string, from, to models.QuoteStatus) (*models.ServiceQuote, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE service_quotes SET status=$1 WHERE id=$2 AND status=$3`, to, id, from)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := p.GetQuote(ctx, id); errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, ErrStatusConflict
	}
	return p.GetQuote(ctx, id)
}

func (p *PostgresStore) StuckDispatched(ctx context.Context, before time.Time) ([]*models.ServiceRequest, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+requestCols+` FROM service_requests
		WHERE status=$1 AND updated_at < $2 ORDER BY updated_at`, models.StatusDispatched, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*models.ServiceRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UnsettledItems(ctx context.Context) ([]SettlementItem, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT q.id, q.request_id, r.provider_id, q.dynamic_total
		FROM service_quotes q JOIN service_requests r ON r.id = q.request_id
		WHERE q.settled = false AND q.status = $1 AND r.provider_id IS NOT NULL
		ORDER BY q.id`, models.QuoteAccepted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SettlementItem
	for rows.Next() {
		var it SettlementItem
		if err := rows.Scan(&it.QuoteID, &it.RequestID, &it.ProviderID, &it.Amount); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (p *PostgresStore) MarkSettled(ctx context.Context, quoteIDs []string) error {
	if len(quoteIDs) == 0 {
		return nil
	}
	_, err := p.db.ExecContext(ctx, `UPDATE service_quotes SET settled=true WHERE id = ANY($1)`, pq.Array(quoteIDs))
	return err
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRequest(row scannable) (*models.ServiceRequest, error) {
	var r models.ServiceRequest
	var providerID, vehicleID sql.NullString
	err := row.Scan(&r.ID, &r.BookerID, &providerID, &vehicleID, &r.VehicleClass, &r.ServiceType,
		&r.Status, &r.Priority, &r.Location.Lat, &r.Location.Lon, &r.Notes, &r.Source,
		&r.Version, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.ProviderID = providerID.String
	r.VehicleID = vehicleID.String
	return &r, nil
}

func scanQuote(row scannable) (*models.ServiceQuote, error) {
	var q models.ServiceQuote
	var parts []byte
	err := row.Scan(&q.ID, &q.RequestID, &q.BasePrice, &q.PerKmRate, &q.DistanceKm,
		&q.TimeEstimateMinutes, &q.DynamicTotal, &q.Status, &q.ValidUntil, &parts,
		&q.SparePartsTotal, &q.PlatformFee, &q.TaxAmount, &q.IsFinal, &q.ProviderPayout,
		&q.ExpensesAmount, &q.PlatformProfit, &q.PaymentRef, &q.Settled, &q.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(parts) > 0 {
		if err := json.Unmarshal(parts, &q.SpareParts); err != nil {
			return nil, err
		}
	}
	return &q, nil
}

func insertQuote(ctx context.Context, tx *sql.Tx, q *models.ServiceQuote) error {
	parts, err := json.Marshal(q.SpareParts)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO service_quotes(`+quoteCols+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		q.ID, q.RequestID, q.BasePrice, q.PerKmRate, q.DistanceKm, q.TimeEstimateMinutes,
		q.DynamicTotal, q.Status, q.ValidUntil, parts, q.SparePartsTotal, q.PlatformFee,
		q.TaxAmount, q.IsFinal, q.ProviderPayout, q.ExpensesAmount, q.PlatformProfit,
		q.PaymentRef, q.Settled, q.CreatedAt)
	return err
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
