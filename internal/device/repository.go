package device

import (
	"context"
	"database/sql"
	"fmt"
)

// PositionRepository persists outlet positions across restarts.
//
// Device state itself is mirrored from the backend and never stored; the
// floor-plan placement is the one piece of state that originates locally.
type PositionRepository interface {
	// Save inserts or replaces the position for a device.
	Save(ctx context.Context, pos OutletPosition) error

	// Delete removes the position for a device. Deleting a position that
	// does not exist is not an error.
	Delete(ctx context.Context, deviceID int64) error

	// List returns all saved positions.
	List(ctx context.Context) ([]OutletPosition, error)
}

// SQLitePositionRepository implements PositionRepository using SQLite.
type SQLitePositionRepository struct {
	db *sql.DB
}

// NewSQLitePositionRepository creates a repository backed by the given
// database handle and ensures the schema exists.
func NewSQLitePositionRepository(ctx context.Context, db *sql.DB) (*SQLitePositionRepository, error) {
	r := &SQLitePositionRepository{db: db}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// ensureSchema creates the positions table if it does not exist.
func (r *SQLitePositionRepository) ensureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS outlet_positions (
			device_id INTEGER PRIMARY KEY,
			x REAL NOT NULL,
			y REAL NOT NULL
		)`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating outlet_positions table: %w", err)
	}
	return nil
}

// Save inserts or replaces the position for a device.
func (r *SQLitePositionRepository) Save(ctx context.Context, pos OutletPosition) error {
	const query = `
		INSERT INTO outlet_positions (device_id, x, y)
		VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET x = excluded.x, y = excluded.y`
	if _, err := r.db.ExecContext(ctx, query, pos.DeviceID, pos.X, pos.Y); err != nil {
		return fmt.Errorf("saving position for device %d: %w", pos.DeviceID, err)
	}
	return nil
}

// Delete removes the position for a device.
func (r *SQLitePositionRepository) Delete(ctx context.Context, deviceID int64) error {
	const query = `DELETE FROM outlet_positions WHERE device_id = ?`
	if _, err := r.db.ExecContext(ctx, query, deviceID); err != nil {
		return fmt.Errorf("deleting position for device %d: %w", deviceID, err)
	}
	return nil
}

// List returns all saved positions.
func (r *SQLitePositionRepository) List(ctx context.Context) ([]OutletPosition, error) {
	const query = `SELECT device_id, x, y FROM outlet_positions ORDER BY device_id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing positions: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only query cleanup

	var out []OutletPosition
	for rows.Next() {
		var p OutletPosition
		if err := rows.Scan(&p.DeviceID, &p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("scanning position row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating position rows: %w", err)
	}
	return out, nil
}
