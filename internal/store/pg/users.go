package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"keystile.org/internal/auth"
	"keystile.org/internal/ids"
)

const pgErrUniqueViolation = "23505"

// registrationLockKey identifies the advisory lock serialising registrations.
const registrationLockKey int64 = 0x6b65797374696c65

var _ auth.UserStore = (*Store)(nil)

const userColumns = `id, username, email, password_hash, role, created_at`

func (s *Store) Create(ctx context.Context, u *auth.User) error {
	if s.q == nil {
		return errors.New("database connection unavailable")
	}
	if u.ID == "" {
		u.ID = ids.New()
	}
	role, err := auth.ParseRole(string(u.Role))
	if err != nil {
		return err
	}
	row := s.q.QueryRowContext(ctx, `
		insert into users (id, username, email, password_hash, role)
		values ($1, $2, $3, $4, $5)
		returning created_at
	`, u.ID, u.Username, u.Email, u.PasswordHash, string(role))
	if err := row.Scan(&u.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrAlreadyExists
		}
		return err
	}
	u.Role = role
	return nil
}

func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, auth.ErrNotFound
	}
	// совпадение по username приоритетнее совпадения по email
	return s.scanUser(s.q.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where username = $1 or lower(email) = lower($1)
		order by (username = $1) desc
		limit 1
	`, identifier))
}

func (s *Store) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return s.scanUser(s.q.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.q.QueryRowContext(ctx, `select count(*) from users`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) Delete(ctx context.Context, id string) (int64, error) {
	res, err := s.q.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// InRegistration runs fn inside a transaction holding a transaction-scoped
// advisory lock, so concurrent registrations see each other's inserts.
func (s *Store) InRegistration(ctx context.Context, fn func(ctx context.Context, users auth.UserStore) error) error {
	if s.inTx {
		return fn(ctx, s)
	}
	if s.db == nil {
		return errors.New("database connection unavailable")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `select pg_advisory_xact_lock($1)`, registrationLockKey); err != nil {
		return fmt.Errorf("registration lock: %w", err)
	}
	if err := fn(ctx, &Store{db: s.db, q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) scanUser(row *sql.Row) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, err
	}
	parsed, err := auth.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("user %s: stored role: %v", u.ID, err)
	}
	u.Role = parsed
	return &u, nil
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
