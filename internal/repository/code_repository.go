package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/autopoint-backend/internal/model"
)

// CodeRepo stores the one pending SMS code per phone number.
type CodeRepo struct{ DB *sql.DB }

func NewCodeRepo(db *sql.DB) *CodeRepo { return &CodeRepo{DB: db} }

// Upsert stores code for phone, replacing any previous one.
func (r *CodeRepo) Upsert(ctx context.Context, phone, code string, expiresAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO verification_codes (phone_number, code, expires_at) VALUES (?,?,?)
		 ON DUPLICATE KEY UPDATE code=VALUES(code), expires_at=VALUES(expires_at), created_at=CURRENT_TIMESTAMP`,
		phone, code, expiresAt)
	return err
}

// GetTx reads the pending code, locking it for the rest of the transaction.
func (r *CodeRepo) GetTx(ctx context.Context, q DBTX, phone string) (model.VerificationCode, error) {
	var v model.VerificationCode
	err := q.QueryRowContext(ctx,
		"SELECT phone_number, code, expires_at FROM verification_codes WHERE phone_number=? LIMIT 1 FOR UPDATE",
		phone).Scan(&v.PhoneNumber, &v.Code, &v.ExpiresAt)
	return v, notFound(err)
}

// Get reads the pending code without locking.
func (r *CodeRepo) Get(ctx context.Context, phone string) (model.VerificationCode, error) {
	var v model.VerificationCode
	err := r.DB.QueryRowContext(ctx,
		"SELECT phone_number, code, expires_at FROM verification_codes WHERE phone_number=? LIMIT 1",
		phone).Scan(&v.PhoneNumber, &v.Code, &v.ExpiresAt)
	return v, notFound(err)
}

// DeleteTx removes the code and reports whether a row was deleted.
func (r *CodeRepo) DeleteTx(ctx context.Context, q DBTX, phone string) (bool, error) {
	res, err := q.ExecContext(ctx, "DELETE FROM verification_codes WHERE phone_number=?", phone)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
