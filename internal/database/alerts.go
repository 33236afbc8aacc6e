package database

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"coinpaprika-price-alerts/internal/types"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const alertColumns = `id, symbol, exchange_id, exchange_name, alert_type, condition, value, base_price,
	frequency, enabled, status, last_checked_price, last_triggered_at, trigger_count, expires_at,
	message, created_at, updated_at`

// AlertStore is the SQLite-backed source of truth for alerts. Every call is a single
// statement, so each write is atomic per record.
type AlertStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewAlertStore(db *sql.DB) *AlertStore {
	return &AlertStore{db: db, now: time.Now}
}

// Create validates and inserts a new alert. The stored record always starts
// active, enabled and with a zero trigger count.
func (s *AlertStore) Create(ctx context.Context, a types.Alert) (types.Alert, error) {
	a.Normalize()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := s.now().UTC()
	a.Status = types.StatusActive
	a.Enabled = true
	a.TriggerCount = 0
	a.LastTriggeredAt = nil
	a.CreatedAt = now
	a.UpdatedAt = now

	if err := a.Validate(); err != nil {
		return types.Alert{}, err
	}

	query := `INSERT INTO alerts (` + alertColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.Symbol, a.ExchangeID, a.ExchangeName, string(a.AlertType), string(a.Condition), a.Value,
		nullFloat(a.BasePrice), string(a.Frequency), a.Enabled, string(a.Status), nullFloat(a.LastCheckedPrice),
		nullTime(a.LastTriggeredAt), a.TriggerCount, nullTime(a.ExpiresAt), a.Message,
		a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return types.Alert{}, errors.Wrap(err, "failed to insert alert")
	}

	log.WithFields(log.Fields{"alert_id": a.ID, "symbol": a.Symbol}).
		Debugf("Alert inserted: %s %s %v %s", a.AlertType, a.Condition, a.Value, a.Frequency)
	return a, nil
}

// Get returns the alert with the given id or types.ErrNotFound.
func (s *AlertStore) Get(ctx context.Context, id string) (types.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?;`, id)
	a, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return types.Alert{}, errors.Wrapf(types.ErrNotFound, "alert %s", id)
	}
	if err != nil {
		return types.Alert{}, errors.Wrapf(err, "failed to get alert %s", id)
	}
	return a, nil
}

// ListActive returns every alert whose status is active.
func (s *AlertStore) ListActive(ctx context.Context) ([]types.Alert, error) {
	return s.query(ctx, `SELECT `+alertColumns+` FROM alerts WHERE status = ? ORDER BY created_at;`, string(types.StatusActive))
}

// List returns all alerts regardless of status.
func (s *AlertStore) List(ctx context.Context) ([]types.Alert, error) {
	return s.query(ctx, `SELECT `+alertColumns+` FROM alerts ORDER BY created_at;`)
}

// Update applies a partial update in a single statement. It reports false when no
// alert with that id exists. An empty update writes nothing.
func (s *AlertStore) Update(ctx context.Context, id string, u types.AlertUpdate) (bool, error) {
	if u.IsEmpty() {
		return s.exists(ctx, id)
	}

	var (
		sets []string
		args []interface{}
	)
	set := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if u.Enabled != nil {
		set("enabled", *u.Enabled)
	}
	if u.Status != nil {
		set("status", string(*u.Status))
	}
	if u.BasePrice != nil {
		set("base_price", *u.BasePrice)
	}
	if u.LastCheckedPrice != nil {
		set("last_checked_price", *u.LastCheckedPrice)
	}
	if u.LastTriggeredAt != nil {
		set("last_triggered_at", u.LastTriggeredAt.UnixNano())
	}
	if u.TriggerCount != nil {
		set("trigger_count", *u.TriggerCount)
	}
	if u.ExpiresAt != nil {
		set("expires_at", u.ExpiresAt.UnixNano())
	}
	if u.Message != nil {
		set("message", *u.Message)
	}
	updatedAt := s.now().UTC()
	if u.UpdatedAt != nil {
		updatedAt = *u.UpdatedAt
	}
	set("updated_at", updatedAt.UnixNano())

	args = append(args, id)
	query := `UPDATE alerts SET ` + strings.Join(sets, ", ") + ` WHERE id = ?;`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrapf(err, "failed to update alert %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "failed to update alert %s", id)
	}
	return n > 0, nil
}

func (s *AlertStore) exists(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM alerts WHERE id = ?;`, id).Scan(&n)
	if err != nil {
		return false, errors.Wrapf(err, "failed to look up alert %s", id)
	}
	return n > 0, nil
}

// Delete removes an alert. It reports false when no alert with that id exists.
func (s *AlertStore) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE id = ?;`, id)
	if err != nil {
		return false, errors.Wrapf(err, "failed to delete alert %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrapf(err, "failed to delete alert %s", id)
	}
	return n > 0, nil
}

// DeleteExpired removes every alert whose expiry is at or before now.
func (s *AlertStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM alerts WHERE expires_at IS NOT NULL AND expires_at <= ?;`, now.UnixNano())
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired alerts")
	}
	return res.RowsAffected()
}

func (s *AlertStore) query(ctx context.Context, query string, args ...interface{}) ([]types.Alert, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query alerts")
	}
	defer rows.Close()

	var alerts []types.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		alerts = append(alerts, a)
	}
	return alerts, errors.Wrap(rows.Err(), "failed to iterate alerts")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row scanner) (types.Alert, error) {
	var (
		a                                       types.Alert
		alertType, condition, frequency, status string
		basePrice, lastChecked                  sql.NullFloat64
		lastTriggered, expiresAt                sql.NullInt64
		createdAt, updatedAt                    int64
	)
	err := row.Scan(&a.ID, &a.Symbol, &a.ExchangeID, &a.ExchangeName, &alertType, &condition, &a.Value,
		&basePrice, &frequency, &a.Enabled, &status, &lastChecked, &lastTriggered, &a.TriggerCount,
		&expiresAt, &a.Message, &createdAt, &updatedAt)
	if err != nil {
		return types.Alert{}, err
	}

	a.AlertType = types.AlertType(alertType)
	a.Condition = types.Condition(condition)
	a.Frequency = types.Frequency(frequency)
	a.Status = types.Status(status)
	if basePrice.Valid {
		a.BasePrice = types.Float(basePrice.Float64)
	}
	if lastChecked.Valid {
		a.LastCheckedPrice = types.Float(lastChecked.Float64)
	}
	if lastTriggered.Valid {
		a.LastTriggeredAt = types.Time(time.Unix(0, lastTriggered.Int64).UTC())
	}
	if expiresAt.Valid {
		a.ExpiresAt = types.Time(time.Unix(0, expiresAt.Int64).UTC())
	}
	a.CreatedAt = time.Unix(0, createdAt).UTC()
	a.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return a, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
