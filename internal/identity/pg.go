// pg.go — Implementación PostgreSQL del Store.
// Usa las tablas app_user y external_account (ver migrations/postgres).
package identity

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists users and links in PostgreSQL. Atomicity of the link
// operations rests on the unique indexes over external_id and user_id.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) GetUser(ctx context.Context, userID string) (*LocalUser, error) {
	const query = `
		SELECT id, email, name, is_active, is_admin, created_at, updated_at
		FROM app_user WHERE id = $1
	`
	var u LocalUser
	err := s.pool.QueryRow(ctx, query, userID).Scan(
		&u.ID, &u.Email, &u.Name, &u.Active, &u.Admin, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PGStore) FindByExternalID(ctx context.Context, externalID string) (*ExternalAccount, error) {
	return s.findAccount(ctx, `external_id = $1`, externalID)
}

func (s *PGStore) FindByUserID(ctx context.Context, userID string) (*ExternalAccount, error) {
	return s.findAccount(ctx, `user_id = $1`, userID)
}

func (s *PGStore) findAccount(ctx context.Context, where, arg string) (*ExternalAccount, error) {
	query := `
		SELECT id, user_id, external_id, email, created_at, updated_at
		FROM external_account WHERE ` + where
	var a ExternalAccount
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&a.ID, &a.UserID, &a.ExternalID, &a.Email, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PGStore) LinkAccount(ctx context.Context, acct *ExternalAccount) (*ExternalAccount, error) {
	// 1. Insertar; si el external_id ya existe no pasa nada.
	// 2. Re-seleccionar: gana la fila que quedó, sea nuestra o del rival.
	now := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO external_account (id, user_id, external_id, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (external_id) DO NOTHING`,
		acct.ID, acct.UserID, acct.ExternalID, acct.Email, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Choca el índice de user_id: el usuario ya tiene cuenta.
			return nil, ErrAlreadyLinked
		}
		return nil, err
	}
	return s.FindByExternalID(ctx, acct.ExternalID)
}

func (s *PGStore) CreateUserWithAccount(ctx context.Context, user *LocalUser, acct *ExternalAccount) (*ExternalAccount, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	_, err = tx.Exec(ctx, `
		INSERT INTO app_user (id, email, name, is_active, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		user.ID, user.Email, user.Name, user.Active, user.Admin, now,
	)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO external_account (id, user_id, external_id, email, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (external_id) DO NOTHING`,
		acct.ID, acct.UserID, acct.ExternalID, acct.Email, now,
	)
	if err != nil {
		return nil, err
	}

	if tag.RowsAffected() == 0 {
		// Perdimos la carrera: descartar el usuario provisional y
		// devolver la cuenta ganadora.
		_ = tx.Rollback(ctx)
		return s.FindByExternalID(ctx, acct.ExternalID)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	out := *acct
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
