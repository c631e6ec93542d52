package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/mentorclub/auth-service/application/port/outbound"
	"github.com/mentorclub/auth-service/domain/entity"
)

const tokenColumns = `id, value, kind, owner_id, device_id, expires_at, created_at`

type tokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) outbound.TokenRepository {
	return &tokenRepository{db: db}
}

// Save upserts by id and returns the stored row. On an existing row only an
// unset device binding is filled in; every other column keeps its value. The
// unique constraint on value rejects duplicates.
func (r *tokenRepository) Save(ctx context.Context, token *entity.Token) (*entity.Token, error) {
	if token.ID == "" {
		token.ID = ulid.Make().String()
	}

	query := `
		INSERT INTO tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			device_id = COALESCE(tokens.device_id, EXCLUDED.device_id)
		RETURNING ` + tokenColumns

	stored, err := scanToken(r.db.QueryRowContext(ctx, query,
		token.ID,
		token.Value,
		string(token.Kind),
		token.OwnerID,
		nullDevice(token.DeviceID),
		token.ExpiresAt,
		token.CreatedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("failed to save token: %w", outbound.ErrTokenAlreadyExists)
		}
		return nil, fmt.Errorf("failed to save token: %w", err)
	}

	return stored, nil
}

func (r *tokenRepository) FindByValue(ctx context.Context, kind entity.TokenKind, value string) (*entity.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE kind = $1 AND value = $2`
	return r.findOne(ctx, query, string(kind), value)
}

func (r *tokenRepository) FindByValueAndDevice(ctx context.Context, kind entity.TokenKind, value string, deviceID uuid.UUID) (*entity.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE kind = $1 AND value = $2 AND device_id = $3`
	return r.findOne(ctx, query, string(kind), value, deviceID)
}

func (r *tokenRepository) FindAllForOwner(ctx context.Context, kind entity.TokenKind, ownerID string) ([]*entity.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE kind = $1 AND owner_id = $2 ORDER BY created_at, id`
	return r.findMany(ctx, query, string(kind), ownerID)
}

func (r *tokenRepository) FindAllForOwnerAndDevice(ctx context.Context, kind entity.TokenKind, ownerID string, deviceID uuid.UUID) ([]*entity.Token, error) {
	query := `SELECT ` + tokenColumns + ` FROM tokens WHERE kind = $1 AND owner_id = $2 AND device_id = $3 ORDER BY created_at, id`
	return r.findMany(ctx, query, string(kind), ownerID, deviceID)
}

func (r *tokenRepository) Delete(ctx context.Context, token *entity.Token) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = $1`, token.ID); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (r *tokenRepository) Consume(ctx context.Context, token *entity.Token) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = $1`, token.ID)
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to consume token: %w", err)
	}
	if rows == 0 {
		return outbound.ErrTokenNotFound
	}
	return nil
}

func (r *tokenRepository) DeleteAllForOwner(ctx context.Context, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE owner_id = $1`, ownerID); err != nil {
		return fmt.Errorf("failed to delete owner tokens: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row rowScanner) (*entity.Token, error) {
	var (
		token  entity.Token
		kind   string
		device uuid.NullUUID
	)
	if err := row.Scan(
		&token.ID,
		&token.Value,
		&kind,
		&token.OwnerID,
		&device,
		&token.ExpiresAt,
		&token.CreatedAt,
	); err != nil {
		return nil, err
	}

	token.Kind = entity.TokenKind(kind)
	if device.Valid {
		id := device.UUID
		token.DeviceID = &id
	}
	return &token, nil
}

func (r *tokenRepository) findOne(ctx context.Context, query string, args ...interface{}) (*entity.Token, error) {
	token, err := scanToken(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, outbound.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to find token: %w", err)
	}
	return token, nil
}

func (r *tokenRepository) findMany(ctx context.Context, query string, args ...interface{}) ([]*entity.Token, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*entity.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tokens: %w", err)
	}

	return tokens, nil
}

func nullDevice(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
