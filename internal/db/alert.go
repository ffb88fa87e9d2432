package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"alert-service/internal/models"
)

// UpsertAlert inserts an alert keyed by (datetime, version). The UTC timestamp is
// converted to the store timezone. On conflict only updated_at changes, so type
// and sended keep the values of the first insert.
func (d *DB) UpsertAlert(ctx context.Context, alert models.Alert) error {
	query := `
	INSERT INTO alerts (datetime, value, version, type)
	VALUES ($1::timestamptz AT TIME ZONE $2, $3, $4, $5)
	ON CONFLICT (datetime, version) DO UPDATE SET updated_at = NOW()`

	_, err := d.Pool.Exec(ctx, query,
		alert.Datetime.UTC(),
		d.timezone,
		alert.Value,
		alert.Version,
		nullableType(alert.Type),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert alert: %w", err)
	}
	return nil
}

// SearchAlerts returns alerts of a version ordered by datetime. Nil filters match anything.
func (d *DB) SearchAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	query := `
	SELECT datetime, value, version, type, sended
	FROM alerts
	WHERE version = $1
	  AND ($2::varchar IS NULL OR type = $2)
	  AND ($3::boolean IS NULL OR sended = $3)
	ORDER BY datetime`

	var typeArg, sendedArg any
	if filter.Type != nil {
		typeArg = string(*filter.Type)
	}
	if filter.Sended != nil {
		sendedArg = *filter.Sended
	}

	rows, err := d.Pool.Query(ctx, query, filter.Version, typeArg, sendedArg)
	if err != nil {
		return nil, fmt.Errorf("failed to search alerts: %w", err)
	}
	defer rows.Close()

	list := []models.Alert{}
	for rows.Next() {
		var alert models.Alert
		var typ *string
		if err := rows.Scan(&alert.Datetime, &alert.Value, &alert.Version, &typ, &alert.Sended); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		if typ != nil {
			alert.Type = models.AlertType(*typ)
		}
		list = append(list, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read alerts: %w", err)
	}
	return list, nil
}

// DispatchAlerts flips sended to true for unsent alerts of version and type and
// returns the rows it changed. Rows already sent are left alone.
func (d *DB) DispatchAlerts(ctx context.Context, version int, typ models.AlertType) ([]models.Alert, error) {
	query := `
	UPDATE alerts
	SET sended = TRUE, updated_at = NOW()
	WHERE version = $1 AND type = $2 AND NOT sended
	RETURNING datetime, value, version, type, sended`

	rows, err := d.Pool.Query(ctx, query, version, string(typ))
	if err != nil {
		return nil, fmt.Errorf("failed to dispatch alerts: %w", err)
	}
	sent, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Alert, error) {
		var alert models.Alert
		var t string
		err := row.Scan(&alert.Datetime, &alert.Value, &alert.Version, &t, &alert.Sended)
		alert.Type = models.AlertType(t)
		return alert, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dispatch alerts: %w", err)
	}
	return sent, nil
}

func nullableType(t models.AlertType) any {
	if t == "" {
		return nil
	}
	return string(t)
}
