package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/iliyamo/autopoint-backend/internal/database"
	"github.com/iliyamo/autopoint-backend/internal/model"
)

const userColumns = "id, phone_number, login, fullname, hashed_password, is_active, is_admin, is_blocked, created_at, updated_at"

type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.PhoneNumber, &u.Login, &u.Fullname, &u.HashedPassword,
		&u.IsActive, &u.IsAdmin, &u.IsBlocked, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.GetByIDTx(ctx, r.DB, id)
}

func (r *UserRepo) GetByIDTx(ctx context.Context, q DBTX, id uint64) (model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
	return u, notFound(err)
}

// GetByPhone fetches a user by normalized phone number.
func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (model.User, error) {
	return r.GetByPhoneTx(ctx, r.DB, phone)
}

func (r *UserRepo) GetByPhoneTx(ctx context.Context, q DBTX, phone string) (model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE phone_number=? LIMIT 1", phone))
	return u, notFound(err)
}

// GetByLogin fetches an admin by login.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (model.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE login=? LIMIT 1", strings.TrimSpace(login)))
	return u, notFound(err)
}

// AnyAdmin reports whether at least one admin exists.
func (r *UserRepo) AnyAdmin(ctx context.Context) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, "SELECT 1 FROM users WHERE is_admin=1 LIMIT 1").Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// LoginExists is the collision check used when generating admin logins.
func (r *UserRepo) LoginExists(ctx context.Context, q DBTX, login string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, "SELECT 1 FROM users WHERE login=? LIMIT 1", login).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// CreateTx inserts u and returns its id. A taken phone or login yields ErrDuplicate.
func (r *UserRepo) CreateTx(ctx context.Context, q DBTX, u model.User) (uint64, error) {
	res, err := q.ExecContext(ctx,
		"INSERT INTO users (phone_number, login, fullname, hashed_password, is_active, is_admin, is_blocked) VALUES (?,?,?,?,?,?,?)",
		u.PhoneNumber, u.Login, u.Fullname, u.HashedPassword, u.IsActive, u.IsAdmin, u.IsBlocked)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// UserFilter narrows the admin user listing.
type UserFilter struct {
	Search    string
	IsAdmin   *bool
	IsBlocked *bool
	Skip      int
	Limit     int
}

// List returns a page of users ordered by newest first plus the total count.
func (r *UserRepo) List(ctx context.Context, f UserFilter) ([]model.User, int, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		where = append(where, "(LOWER(phone_number) LIKE ? OR LOWER(COALESCE(login,'')) LIKE ? OR LOWER(COALESCE(fullname,'')) LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.IsAdmin != nil {
		where = append(where, "is_admin=?")
		args = append(args, *f.IsAdmin)
	}
	if f.IsBlocked != nil {
		where = append(where, "is_blocked=?")
		args = append(args, *f.IsBlocked)
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	skip, limit := clampPage(f.Skip, f.Limit)
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users"+cond+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, skip)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

// SetAdmin toggles the admin flag.
func (r *UserRepo) SetAdmin(ctx context.Context, id uint64, isAdmin bool) error {
	return affected(r.DB.ExecContext(ctx, "UPDATE users SET is_admin=? WHERE id=?", isAdmin, id))
}

// SetBlocked blocks or unblocks a user. Blocking always deactivates;
// unblocking reactivates.
func (r *UserRepo) SetBlocked(ctx context.Context, id uint64, blocked bool) error {
	return affected(r.DB.ExecContext(ctx,
		"UPDATE users SET is_blocked=?, is_active=? WHERE id=?", blocked, !blocked, id))
}

// cascadeSteps is the fixed deletion order for a user and all dependents.
// The verification code step is keyed by phone, every other step by id.
var cascadeSteps = []struct {
	table  string
	column string
}{
	{"user_statistics", "user_id"},
	{"transactions", "user_id"},
	{"user_achievements", "user_id"},
	{"user_favorites", "user_id"},
	{"user_profiles", "user_id"},
	{"user_notifications", "user_id"},
	{"users_extended", "user_id"},
	{"verification_codes", "phone_number"},
	{"blacklisted_tokens", "user_id"},
	{"users", "id"},
}

// DeleteCascade removes the user and its dependents in one transaction.
// Missing dependent rows are fine; any statement error rolls back everything.
func (r *UserRepo) DeleteCascade(ctx context.Context, id uint64) error {
	return database.WithTx(ctx, r.DB, func(tx *sql.Tx) error {
		u, err := r.GetByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, step := range cascadeSteps {
			var key any = id
			if step.column == "phone_number" {
				key = u.PhoneNumber
			}
			q := fmt.Sprintf("DELETE FROM %s WHERE %s=?", step.table, step.column)
			if _, err := tx.ExecContext(ctx, q, key); err != nil {
				return fmt.Errorf("delete %s: %w", step.table, err)
			}
		}
		return nil
	})
}
