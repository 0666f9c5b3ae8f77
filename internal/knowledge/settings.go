package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Setting keys.
const (
	SettingMaxResults    = "search.max_results"
	SettingContentWeight = "search.content_weight"
	SettingContextWeight = "search.context_weight"
)

// Setting is a typed runtime setting stored alongside the data.
type Setting struct {
	Key          string `json:"key"`
	Value        string `json:"value"`
	DefaultValue string `json:"default_value"`
	Type         string `json:"type"` // "integer" or "float"
	Description  string `json:"description"`
	UpdatedAt    string `json:"updated_at"`
}

type settingSpec struct {
	key         string
	valueType   string
	value       string
	description string
}

func (s *Store) settingSpecs() []settingSpec {
	return []settingSpec{
		{SettingMaxResults, "integer", strconv.Itoa(s.cfg.MaxSearchResults), "Maximum number of entries a search returns (1-1000)"},
		{SettingContentWeight, "float", formatFloat(s.cfg.ContentWeight), "BM25 weight of the content column (0-100)"},
		{SettingContextWeight, "float", formatFloat(s.cfg.ContextWeight), "BM25 weight of the context column (0-100)"},
	}
}

// seedSettings inserts missing settings and refreshes the default of
// existing ones. Stored values are never overwritten.
func (s *Store) seedSettings(ctx context.Context, tx *sql.Tx) error {
	for _, sp := range s.settingSpecs() {
		if err := checkSettingValue(sp.key, sp.valueType, sp.value); err != nil {
			return fmt.Errorf("configured default: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO settings (key, value, default_value, value_type, description)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET
			   default_value = excluded.default_value,
			   value_type    = excluded.value_type,
			   description   = excluded.description`,
			sp.key, sp.value, sp.value, sp.valueType, sp.description,
		); err != nil {
			return err
		}
	}
	return nil
}

// ListSettings returns every setting ordered by key.
func (s *Store) ListSettings(ctx context.Context) ([]Setting, error) {
	rows, err := s.rdb.QueryContext(ctx,
		`SELECT key, value, default_value, value_type, description, updated_at FROM settings ORDER BY key`,
	)
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Setting
	for rows.Next() {
		var st Setting
		if err := rows.Scan(&st.Key, &st.Value, &st.DefaultValue, &st.Type, &st.Description, &st.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UpdateSetting stores value after checking it parses as the setting's type
// and lies in its range.
func (s *Store) UpdateSetting(ctx context.Context, key, value string) (*Setting, error) {
	var out *Setting
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		st, err := getSettingTx(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := checkSettingValue(key, st.Type, value); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE settings SET value = ?, updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now') WHERE key = ?`,
			value, key,
		); err != nil {
			return fmt.Errorf("update setting: %w", err)
		}
		out, err = getSettingTx(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("setting updated", zap.String("key", key), zap.String("value", value))
	return out, nil
}

// ResetSetting restores a setting's default value.
func (s *Store) ResetSetting(ctx context.Context, key string) (*Setting, error) {
	var out *Setting
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE settings SET value = default_value, updated_at = strftime('%Y-%m-%d %H:%M:%f', 'now') WHERE key = ?`,
			key,
		)
		if err != nil {
			return fmt.Errorf("reset setting: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("setting %q: %w", key, ErrNotFound)
		}
		out, err = getSettingTx(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("setting reset", zap.String("key", key), zap.String("value", out.Value))
	return out, nil
}

func getSettingTx(ctx context.Context, q dbtx, key string) (*Setting, error) {
	var st Setting
	err := q.QueryRowContext(ctx,
		`SELECT key, value, default_value, value_type, description, updated_at FROM settings WHERE key = ?`, key,
	).Scan(&st.Key, &st.Value, &st.DefaultValue, &st.Type, &st.Description, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// searchParams holds the settings a search reads.
type searchParams struct {
	maxResults    int
	contentWeight float64
	contextWeight float64
}

func searchParamsTx(ctx context.Context, q dbtx) (searchParams, error) {
	var p searchParams
	rows, err := q.QueryContext(ctx,
		`SELECT key, value FROM settings WHERE key IN (?, ?, ?)`,
		SettingMaxResults, SettingContentWeight, SettingContextWeight,
	)
	if err != nil {
		return p, fmt.Errorf("read search settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return p, err
		}
		switch key {
		case SettingMaxResults:
			p.maxResults, err = strconv.Atoi(value)
		case SettingContentWeight:
			p.contentWeight, err = strconv.ParseFloat(value, 64)
		case SettingContextWeight:
			p.contextWeight, err = strconv.ParseFloat(value, 64)
		}
		if err != nil {
			return p, fmt.Errorf("setting %s: %w", key, err)
		}
	}
	return p, rows.Err()
}

func checkSettingValue(key, valueType, value string) error {
	switch valueType {
	case "integer":
		n, err := strconv.Atoi(value)
		if err != nil {
			return invalid("%s must be an integer, got %q", key, value)
		}
		if n < 1 || n > 1000 {
			return invalid("%s must be between 1 and 1000, got %d", key, n)
		}
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return invalid("%s must be a number, got %q", key, value)
		}
		if f < 0 || f > 100 {
			return invalid("%s must be between 0 and 100, got %s", key, value)
		}
	default:
		return invalid("%s has unknown type %q", key, valueType)
	}
	return nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
