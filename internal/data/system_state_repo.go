package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/target/creative-dispatch/internal/domain/model"
)

// SystemStateRepo stores key to JSON documents in the system_state table.
type SystemStateRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewSystemStateRepo creates a SystemStateRepo. A nil TimeProvider uses the system clock.
func NewSystemStateRepo(db *sql.DB, tp TimeProvider) *SystemStateRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &SystemStateRepo{DB: db, timeProvider: tp}
}

// Get returns (nil, nil) for a key that has never been written.
func (r *SystemStateRepo) Get(ctx context.Context, key string) (*model.SystemState, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrStateKeyRequired
	}
	st := &model.SystemState{}
	var value []byte
	err := r.DB.QueryRowContext(ctx,
		`SELECT key, value, updated_at FROM system_state WHERE key = $1`, key,
	).Scan(&st.Key, &value, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // absent key is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("get system state %s: %w", key, err)
	}
	st.Value = append(json.RawMessage(nil), value...)
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

// Set upserts the value for key.
func (r *SystemStateRepo) Set(ctx context.Context, key string, value json.RawMessage) error {
	if strings.TrimSpace(key) == "" {
		return ErrStateKeyRequired
	}
	if !json.Valid(value) {
		return fmt.Errorf("system state %s: value must be valid JSON", key)
	}
	if _, err := r.DB.ExecContext(ctx, `
		INSERT INTO system_state (key, value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value,
		    updated_at = EXCLUDED.updated_at
	`, key, []byte(value), r.timeProvider.Now().UTC()); err != nil {
		return fmt.Errorf("set system state %s: %w", key, err)
	}
	return nil
}
