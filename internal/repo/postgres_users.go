package repo

import (
	"context"

	"github.com/LeventeLantos/health-assistant/internal/model"
)

func (r *PostgresStore) ListActiveUsers(ctx context.Context) ([]model.User, error) {
	return r.queryUsers(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE active
		ORDER BY id ASC
	`)
}

func (r *PostgresStore) ListActiveUsersByRegion(ctx context.Context, region string) ([]model.User, error) {
	return r.queryUsers(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE active AND region = $1
		ORDER BY id ASC
	`, region)
}

func (r *PostgresStore) queryUsers(ctx context.Context, query string, args ...any) ([]model.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (r *PostgresStore) UpsertUser(ctx context.Context, u model.User) (*model.User, error) {
	if u.Language == "" {
		u.Language = model.DefaultLanguage
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (recipient, display_name, language, region, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (recipient) DO UPDATE
		SET display_name = EXCLUDED.display_name,
		    language = EXCLUDED.language,
		    region = EXCLUDED.region,
		    active = EXCLUDED.active
		RETURNING `+userColumns,
		u.Recipient, u.DisplayName, u.Language, u.Region, u.Active)
	return scanUser(row)
}

func (r *PostgresStore) DeactivateUser(ctx context.Context, recipient string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET active = FALSE WHERE recipient = $1
	`, recipient)
	if err != nil {
		return err
	}
	return expectRow(res)
}
