package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/LeventeLantos/health-assistant/internal/model"
)

const userColumns = `id, recipient, display_name, language, region, active, last_interaction, created_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	if err := row.Scan(
		&u.ID,
		&u.Recipient,
		&u.DisplayName,
		&u.Language,
		&u.Region,
		&u.Active,
		&u.LastInteraction,
		&u.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *PostgresStore) CreateUserIfAbsent(ctx context.Context, recipient, displayName string) (*model.User, error) {
	// The no-op update makes RETURNING yield the existing row on conflict.
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO users (recipient, display_name, language)
		VALUES ($1, $2, $3)
		ON CONFLICT (recipient) DO UPDATE SET recipient = EXCLUDED.recipient
		RETURNING `+userColumns,
		recipient, displayName, model.DefaultLanguage)
	return scanUser(row)
}

func (r *PostgresStore) ActiveConversation(ctx context.Context, userID int64) (*model.Conversation, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Serializes concurrent openers for the same user; the partial unique
	// index on (user_id) WHERE active backs this up.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, userID); err != nil {
		return nil, err
	}

	var c model.Conversation
	var endedAt sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, started_at, ended_at, active
		FROM conversations
		WHERE user_id = $1 AND active
	`, userID).Scan(&c.ID, &c.UserID, &c.StartedAt, &endedAt, &c.Active)

	switch {
	case err == nil:
		if endedAt.Valid {
			t := endedAt.Time
			c.EndedAt = &t
		}
	case errors.Is(err, sql.ErrNoRows):
		c = model.Conversation{
			ID:        uuid.NewString(),
			UserID:    userID,
			StartedAt: time.Now().UTC(),
			Active:    true,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversations (id, user_id, started_at, active)
			VALUES ($1, $2, $3, TRUE)
		`, c.ID, c.UserID, c.StartedAt); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &c, nil
}

const messageColumns = `id, external_id, conversation_id, direction, kind, body,
	language, intent, confidence, model, latency_ms, retry_count, last_error, created_at`

func scanMessage(row interface{ Scan(...any) error }) (*model.Message, error) {
	var m model.Message
	var direction, kind string
	var language, intentLabel, modelName, lastErr sql.NullString
	var confidence sql.NullFloat64
	var latency sql.NullInt64

	if err := row.Scan(
		&m.ID,
		&m.ExternalID,
		&m.ConversationID,
		&direction,
		&kind,
		&m.Body,
		&language,
		&intentLabel,
		&confidence,
		&modelName,
		&latency,
		&m.RetryCount,
		&lastErr,
		&m.CreatedAt,
	); err != nil {
		return nil, err
	}

	m.Direction = model.Direction(direction)
	m.Kind = model.Kind(kind)
	m.Annotations = model.Annotations{
		Language:   language.String,
		Intent:     intentLabel.String,
		Confidence: confidence.Float64,
		Model:      modelName.String,
		LatencyMS:  latency.Int64,
	}
	if lastErr.Valid {
		s := lastErr.String
		m.Error = &s
	}
	return &m, nil
}

func (r *PostgresStore) AppendMessage(ctx context.Context, conversationID string, m model.Message) (*model.Message, bool, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	if m.Kind == "" {
		m.Kind = model.KindText
	}
	var lastErr sql.NullString
	if m.Error != nil {
		lastErr = nullString(*m.Error)
	}
	var confidence sql.NullFloat64
	var latency sql.NullInt64
	if !m.Annotations.IsZero() {
		confidence = sql.NullFloat64{Float64: m.Annotations.Confidence, Valid: true}
		latency = sql.NullInt64{Int64: m.Annotations.LatencyMS, Valid: true}
	}

	stored, err := scanMessage(tx.QueryRowContext(ctx, `
		INSERT INTO messages (external_id, conversation_id, direction, kind, body,
			language, intent, confidence, model, latency_ms, retry_count, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (external_id) DO NOTHING
		RETURNING `+messageColumns,
		m.ExternalID, conversationID, string(m.Direction), string(m.Kind), m.Body,
		nullString(m.Annotations.Language), nullString(m.Annotations.Intent), confidence,
		nullString(m.Annotations.Model), latency, m.RetryCount, lastErr,
	))
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := scanMessage(tx.QueryRowContext(ctx, `
			SELECT `+messageColumns+`
			FROM messages
			WHERE external_id = $1
		`, m.ExternalID))
		if err != nil {
			return nil, false, err
		}
		return existing, false, tx.Commit()
	}
	if err != nil {
		return nil, false, err
	}

	if m.Direction == model.FromUser {
		if _, err := tx.ExecContext(ctx, `
			UPDATE users
			SET last_interaction = now()
			WHERE id = (SELECT user_id FROM conversations WHERE id = $1)
		`, conversationID); err != nil {
			return nil, false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

func (r *PostgresStore) BackfillAnnotations(ctx context.Context, externalID string, a model.Annotations) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages
		SET language = $2,
		    intent = $3,
		    confidence = $4,
		    model = $5,
		    latency_ms = $6
		WHERE external_id = $1
	`, externalID, nullString(a.Language), nullString(a.Intent), a.Confidence, nullString(a.Model), a.LatencyMS)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *PostgresStore) MessageExists(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM messages WHERE external_id = $1)
	`, externalID).Scan(&exists)
	return exists, err
}

func (r *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY id ASC
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (r *PostgresStore) SetUserLanguage(ctx context.Context, userID int64, language string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET language = $2 WHERE id = $1
	`, userID, language)
	if err != nil {
		return err
	}
	return expectRow(res)
}

func (r *PostgresStore) CloseIdleConversations(ctx context.Context, idleSince time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations c
		SET active = FALSE, ended_at = now()
		FROM users u
		WHERE c.user_id = u.id
		  AND c.active
		  AND u.last_interaction < $1
	`, idleSince)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
