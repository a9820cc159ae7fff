package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PlatformAccount is the row shape returned for a platform account.
type PlatformAccount struct {
	ID              uuid.UUID
	Platform        string
	IsActive        bool
	SendMode        string
	IntegrationMode string
	Credentials     json.RawMessage
}

// GetPlatformAccount fetches a single platform account by id.
func (q *Queries) GetPlatformAccount(ctx context.Context, id uuid.UUID) (PlatformAccount, error) {
	var row PlatformAccount
	err := q.db.QueryRow(ctx, `
		SELECT id, platform, is_active, send_mode, integration_mode, credentials
		FROM platform_accounts WHERE id = $1`, id,
	).Scan(&row.ID, &row.Platform, &row.IsActive, &row.SendMode, &row.IntegrationMode, &row.Credentials)
	if err != nil {
		return PlatformAccount{}, fmt.Errorf("scanning platform account: %w", err)
	}
	return row, nil
}

// ListActivePlatformAccounts returns every active account for a platform,
// or every active account across all platforms when platform is empty.
func (q *Queries) ListActivePlatformAccounts(ctx context.Context, platform string) ([]PlatformAccount, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if platform == "" {
		rows, err = q.db.Query(ctx, `
			SELECT id, platform, is_active, send_mode, integration_mode, credentials
			FROM platform_accounts WHERE is_active = true`)
	} else {
		rows, err = q.db.Query(ctx, `
			SELECT id, platform, is_active, send_mode, integration_mode, credentials
			FROM platform_accounts WHERE is_active = true AND platform = $1`, platform)
	}
	if err != nil {
		return nil, fmt.Errorf("querying platform accounts: %w", err)
	}
	defer rows.Close()

	var out []PlatformAccount
	for rows.Next() {
		var r PlatformAccount
		if err := rows.Scan(&r.ID, &r.Platform, &r.IsActive, &r.SendMode, &r.IntegrationMode, &r.Credentials); err != nil {
			return nil, fmt.Errorf("scanning platform account row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
