package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/autopoint-backend/internal/config"
	"github.com/iliyamo/autopoint-backend/internal/repository"
	"github.com/iliyamo/autopoint-backend/internal/utils"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeSMS struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeSMS) Send(_ context.Context, phone, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, phone)
	return f.err
}

func testSettings() config.Settings {
	return config.Settings{
		SecretKey:                "test-secret",
		Algorithm:                "HS256",
		AccessTokenExpireMinutes: 60,
		SMS: config.SMSConfig{
			CodeExpireMinutes: 5,
			MainPhoneNumber:   "+998900000000",
			TestCode:          "1111",
		},
	}
}

func newAuth(t *testing.T, sms SMSSender) (*AuthService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &AuthService{
		DB:          db,
		Users:       repository.NewUserRepo(db),
		Codes:       repository.NewCodeRepo(db),
		Tokens:      repository.NewTokenRepo(db),
		Provisioner: &Provisioner{Profiles: repository.NewProfileRepo(db), Log: zerolog.Nop()},
		SMS:         sms,
		Cfg:         testSettings(),
		Log:         zerolog.Nop(),
		Now:         func() time.Time { return testNow },
	}, mock
}

var userCols = []string{"id", "phone_number", "login", "fullname", "hashed_password",
	"is_active", "is_admin", "is_blocked", "created_at", "updated_at"}

func TestSendCode(t *testing.T) {
	t.Run("BypassPhoneStoresTestCodeWithoutSMS", func(t *testing.T) {
		sms := &fakeSMS{}
		svc, mock := newAuth(t, sms)
		mock.ExpectExec("INSERT INTO verification_codes").
			WithArgs("+998900000000", "1111", testNow.Add(5*time.Minute)).
			WillReturnResult(sqlmock.NewResult(1, 1))

		res, err := svc.SendCode(context.Background(), "+998 90 000-00-00")
		require.NoError(t, err)
		assert.Equal(t, "+998900000000", res.PhoneNumber)
		assert.Equal(t, 300, res.ExpiresIn)
		assert.Empty(t, sms.calls)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("VendorFailureKeepsStoredCode", func(t *testing.T) {
		sms := &fakeSMS{err: errors.New("vendor down")}
		svc, mock := newAuth(t, sms)
		mock.ExpectExec("INSERT INTO verification_codes").WillReturnResult(sqlmock.NewResult(1, 1))

		_, err := svc.SendCode(context.Background(), "+998901234567")
		require.NoError(t, err)
		assert.Equal(t, []string{"+998901234567"}, sms.calls)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestVerifyCode(t *testing.T) {
	codeCols := []string{"phone_number", "code", "expires_at"}
	phone := "+998900000100"

	t.Run("FirstSignInCreatesAndProvisions", func(t *testing.T) {
		svc, mock := newAuth(t, nil)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM verification_codes WHERE phone_number=\\? LIMIT 1 FOR UPDATE").WithArgs(phone).
			WillReturnRows(sqlmock.NewRows(codeCols).AddRow(phone, "4821", testNow.Add(time.Minute)))
		mock.ExpectExec("DELETE FROM verification_codes").WithArgs(phone).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("FROM users WHERE phone_number=\\?").WithArgs(phone).WillReturnRows(sqlmock.NewRows(userCols))
		mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(5, 1))
		mock.ExpectExec("INSERT IGNORE INTO users_extended").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT IGNORE INTO user_profiles").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT IGNORE INTO user_notifications").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT IGNORE INTO user_statistics").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectQuery("FROM users WHERE id=\\?").WithArgs(uint64(5)).
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(5, phone, nil, nil, nil, true, false, false, testNow, testNow))
		mock.ExpectCommit()
		mock.ExpectExec("INSERT IGNORE INTO user_achievements").WillReturnError(errors.New("seed failed"))

		res, err := svc.VerifyCode(context.Background(), phone, "4821")
		require.NoError(t, err)
		require.True(t, res.IsVerified)
		require.NotNil(t, res.Token)

		sub, err := utils.ParseAccessToken("test-secret", "HS256", *res.Token)
		require.NoError(t, err)
		assert.Equal(t, utils.PhoneAndID, sub.Kind)
		assert.Equal(t, phone, sub.Phone)
		assert.Equal(t, uint64(5), sub.UserID)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("WrongCodeIsNotConsumed", func(t *testing.T) {
		svc, mock := newAuth(t, nil)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM verification_codes").
			WillReturnRows(sqlmock.NewRows(codeCols).AddRow(phone, "4821", testNow.Add(time.Minute)))
		mock.ExpectCommit()

		res, err := svc.VerifyCode(context.Background(), phone, "0000")
		require.NoError(t, err)
		assert.False(t, res.IsVerified)
		assert.Nil(t, res.Token)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ExpiredCodeIsDeleted", func(t *testing.T) {
		svc, mock := newAuth(t, nil)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM verification_codes").
			WillReturnRows(sqlmock.NewRows(codeCols).AddRow(phone, "4821", testNow.Add(-time.Second)))
		mock.ExpectExec("DELETE FROM verification_codes").WithArgs(phone).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		res, err := svc.VerifyCode(context.Background(), phone, "4821")
		require.NoError(t, err)
		assert.False(t, res.IsVerified)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ConsumedCodeFails", func(t *testing.T) {
		svc, mock := newAuth(t, nil)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM verification_codes").WillReturnRows(sqlmock.NewRows(codeCols))
		mock.ExpectCommit()

		res, err := svc.VerifyCode(context.Background(), phone, "4821")
		require.NoError(t, err)
		assert.False(t, res.IsVerified)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAdminLogin(t *testing.T) {
	hash, err := utils.HashPassword("Secret#123ab", 4)
	require.NoError(t, err)

	cases := []struct {
		name     string
		password string
		isAdmin  bool
		blocked  bool
		wantErr  bool
	}{
		{"Valid", "Secret#123ab", true, false, false},
		{"WrongPassword", "nope", true, false, true},
		{"NotAdmin", "Secret#123ab", false, false, true},
		{"Blocked", "Secret#123ab", true, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, mock := newAuth(t, nil)
			mock.ExpectQuery("FROM users WHERE login=\\?").WithArgs("admin_abc123").
				WillReturnRows(sqlmock.NewRows(userCols).
					AddRow(1, "+998900000001", "admin_abc123", nil, hash, !tc.blocked, tc.isAdmin, tc.blocked, testNow, testNow))

			tok, _, err := svc.AdminLogin(context.Background(), "admin_abc123", tc.password)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCredentials)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, tok.Token)
		})
	}

	t.Run("UnknownLogin", func(t *testing.T) {
		svc, mock := newAuth(t, nil)
		mock.ExpectQuery("FROM users WHERE login=\\?").WillReturnRows(sqlmock.NewRows(userCols))
		_, _, err := svc.AdminLogin(context.Background(), "ghost", "x")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestAuthenticateRejectsRevokedToken(t *testing.T) {
	svc, mock := newAuth(t, nil)
	tok, err := utils.NewAccessToken("test-secret", "HS256",
		utils.Subject{Kind: utils.PhoneAndID, Phone: "+998900000100", UserID: 5}, time.Hour)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT 1 FROM blacklisted_tokens").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	_, err = svc.Authenticate(context.Background(), tok.Token)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Authenticate(context.Background(), "garbage")
	assert.ErrorIs(t, err, ErrUnauthorized)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAuthenticateLegacyPhoneOnlySubject(t *testing.T) {
	svc, mock := newAuth(t, nil)
	tok, err := utils.NewAccessToken("test-secret", "HS256", "+998900000100", time.Hour)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT 1 FROM blacklisted_tokens").WillReturnRows(sqlmock.NewRows([]string{"1"}))
	mock.ExpectQuery("FROM users WHERE phone_number=\\?").WithArgs("+998900000100").
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(5, "+998900000100", nil, nil, nil, true, false, false, testNow, testNow))

	u, err := svc.Authenticate(context.Background(), tok.Token)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), u.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLogoutIsIdempotent(t *testing.T) {
	svc, mock := newAuth(t, nil)
	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT IGNORE INTO blacklisted_tokens").WillReturnResult(sqlmock.NewResult(0, int64(1-i)))
		mock.ExpectExec("DELETE FROM blacklisted_tokens WHERE blacklisted_at < \\?").
			WithArgs(testNow.Add(-time.Hour)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	require.NoError(t, svc.Logout(context.Background(), "tok", 5))
	require.NoError(t, svc.Logout(context.Background(), "tok", 5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAdmin(t *testing.T) {
	t.Run("PhoneTaken", func(t *testing.T) {
		svc, mock := newAuth(t, nil)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM users WHERE phone_number=\\?").
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(1, "+998900000001", nil, nil, nil, true, false, false, testNow, testNow))
		mock.ExpectRollback()

		_, err := svc.CreateAdmin(context.Background(), "+998900000001", nil)
		assert.ErrorIs(t, err, ErrPhoneTaken)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("RetriesLoginCollisions", func(t *testing.T) {
		svc, mock := newAuth(t, nil)
		mock.ExpectBegin()
		mock.ExpectQuery("FROM users WHERE phone_number=\\?").WillReturnRows(sqlmock.NewRows(userCols))
		mock.ExpectQuery("SELECT 1 FROM users WHERE login=\\?").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectQuery("SELECT 1 FROM users WHERE login=\\?").WillReturnRows(sqlmock.NewRows([]string{"1"}))
		mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(2, 1))
		for i := 0; i < 4; i++ {
			mock.ExpectExec("INSERT IGNORE INTO").WillReturnResult(sqlmock.NewResult(1, 1))
		}
		mock.ExpectQuery("FROM users WHERE id=\\?").
			WillReturnRows(sqlmock.NewRows(userCols).AddRow(2, "+998900000001", "admin_x", nil, "h", true, true, false, testNow, testNow))
		mock.ExpectCommit()
		mock.ExpectExec("INSERT IGNORE INTO user_achievements").WillReturnResult(sqlmock.NewResult(1, 4))

		out, err := svc.CreateAdmin(context.Background(), "+998900000001", nil)
		require.NoError(t, err)
		assert.Regexp(t, `^admin_[a-z0-9]{6}$`, out.Login)
		assert.Len(t, out.Password, 12)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
