package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Parameter keys used by the sync engine.
const (
	ParamLastImportTime = "shopify.last_import_time"
	ParamStoreKey       = "shopify.store_url_key"
	ParamAPIToken       = "shopify.api_token"
	ParamAPIVersion     = "shopify.api_version"
)

// GetParam reads one persisted key/value parameter. Returns "" when the key
// does not exist.
func (s *Store) GetParam(ctx context.Context, key string) (string, error) {
	var value string
	err := s.q().QueryRowContext(ctx,
		"SELECT param_value FROM config_param WHERE param_key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read parameter %q: %w", key, err)
	}
	return value, nil
}

// SetParam writes one persisted key/value parameter.
func (s *Store) SetParam(ctx context.Context, key, value string) error {
	query := `INSERT INTO config_param (param_key, param_value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE param_value = VALUES(param_value)`
	if _, err := s.q().ExecContext(ctx, query, key, value); err != nil {
		return &WriteError{Op: "set parameter " + key, Err: err}
	}
	return nil
}
