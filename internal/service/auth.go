// Package service holds the application workflows that span several
// repositories: sign-in, provisioning, media storage, SMS and audit events.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/autopoint-backend/internal/config"
	"github.com/iliyamo/autopoint-backend/internal/database"
	"github.com/iliyamo/autopoint-backend/internal/model"
	"github.com/iliyamo/autopoint-backend/internal/repository"
	"github.com/iliyamo/autopoint-backend/internal/utils"
)

var (
	// ErrInvalidCredentials covers every admin login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized means the bearer token cannot be trusted.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPhoneTaken is returned when creating an admin for a known phone.
	ErrPhoneTaken = errors.New("phone already registered")
	// ErrLoginExhausted means no free admin login was found.
	ErrLoginExhausted = errors.New("could not allocate a unique login")
)

const loginAttempts = 10

// AuthService implements code sign-in, admin login, logout and admin
// creation.
type AuthService struct {
	DB          *sql.DB
	Users       *repository.UserRepo
	Codes       *repository.CodeRepo
	Tokens      *repository.TokenRepo
	Provisioner *Provisioner
	SMS         SMSSender
	Cfg         config.Settings
	Log         zerolog.Logger
	Now         func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *AuthService) ttl() time.Duration {
	return time.Duration(s.Cfg.AccessTokenTTLSeconds()) * time.Second
}

// SendCodeResult is returned by SendCode.
type SendCodeResult struct {
	Message     string `json:"message"`
	PhoneNumber string `json:"phone_number"`
	ExpiresIn   int    `json:"expires_in"`
}

// SendCode stores a fresh code and then dispatches it. The bypass phone gets
// the configured test code and no SMS. A vendor failure is logged only: the
// stored code stays valid.
func (s *AuthService) SendCode(ctx context.Context, phone string) (SendCodeResult, error) {
	phone = utils.NormalizePhone(phone)
	bypass := phone == s.Cfg.SMS.MainPhoneNumber

	code := s.Cfg.SMS.TestCode
	if !bypass {
		c, err := utils.GenerateCode()
		if err != nil {
			return SendCodeResult{}, err
		}
		code = c
	}
	ttl := time.Duration(s.Cfg.SMS.CodeExpireMinutes) * time.Minute
	if err := s.Codes.Upsert(ctx, phone, code, s.now().Add(ttl)); err != nil {
		return SendCodeResult{}, fmt.Errorf("store code: %w", err)
	}

	if !bypass && s.SMS != nil {
		if err := s.SMS.Send(ctx, phone, CodeMessage(code)); err != nil {
			s.Log.Error().Err(err).Str("phone", phone).Msg("sms dispatch failed")
		}
	}
	return SendCodeResult{
		Message:     "Код подтверждения отправлен",
		PhoneNumber: phone,
		ExpiresIn:   int(ttl.Seconds()),
	}, nil
}

// VerifyResult is returned by VerifyCode. Token is set only on success.
type VerifyResult struct {
	IsVerified bool        `json:"is_verified"`
	Message    string      `json:"message"`
	Token      *string     `json:"token,omitempty"`
	User       *model.User `json:"-"`
}

// VerifyCode consumes the code and signs the user in, creating and
// provisioning the account on first use. All database work runs in one
// transaction; a second verify with the same code fails because the row is
// gone.
func (s *AuthService) VerifyCode(ctx context.Context, phone, code string) (VerifyResult, error) {
	phone = utils.NormalizePhone(phone)
	var (
		res     VerifyResult
		user    model.User
		created bool
	)
	err := database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		v, err := s.Codes.GetTx(ctx, tx, phone)
		if errors.Is(err, repository.ErrNotFound) {
			res.Message = "Код не найден"
			return nil
		}
		if err != nil {
			return err
		}
		if v.Expired(s.now()) {
			if _, err := s.Codes.DeleteTx(ctx, tx, phone); err != nil {
				return err
			}
			res.Message = "Код истёк"
			return nil
		}
		if v.Code != code {
			res.Message = "Неверный код"
			return nil
		}
		deleted, err := s.Codes.DeleteTx(ctx, tx, phone)
		if err != nil {
			return err
		}
		if !deleted {
			res.Message = "Код не найден"
			return nil
		}

		user, err = s.Users.GetByPhoneTx(ctx, tx, phone)
		if errors.Is(err, repository.ErrNotFound) {
			id, err := s.Users.CreateTx(ctx, tx, model.User{PhoneNumber: phone, IsActive: true})
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			if err := s.Provisioner.ProvisionTx(ctx, tx, id, phone); err != nil {
				return err
			}
			user, err = s.Users.GetByIDTx(ctx, tx, id)
			if err != nil {
				return err
			}
			created = true
		} else if err != nil {
			return err
		}
		res.IsVerified = true
		return nil
	})
	if err != nil || !res.IsVerified {
		return res, err
	}
	if created {
		s.Provisioner.SeedAchievements(ctx, user.ID)
	}
	tok, err := s.IssueToken(user)
	if err != nil {
		return VerifyResult{}, err
	}
	res.Message = "Код подтверждён"
	res.Token = &tok.Token
	res.User = &user
	return res, nil
}

// CheckRegistration reports whether a user exists for the phone.
func (s *AuthService) CheckRegistration(ctx context.Context, phone string) (bool, error) {
	_, err := s.Users.GetByPhone(ctx, utils.NormalizePhone(phone))
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// IssueToken signs a bearer token for u.
func (s *AuthService) IssueToken(u model.User) (utils.AccessToken, error) {
	return utils.NewAccessToken(s.Cfg.SecretKey, s.Cfg.Algorithm,
		utils.Subject{Kind: utils.PhoneAndID, Phone: u.PhoneNumber, UserID: u.ID}, s.ttl())
}

// AdminLogin checks login and password of an active admin. Every failure is
// reported as ErrInvalidCredentials.
func (s *AuthService) AdminLogin(ctx context.Context, login, password string) (utils.AccessToken, model.User, error) {
	u, err := s.Users.GetByLogin(ctx, login)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.Log.Error().Err(err).Msg("admin login lookup failed")
		}
		return utils.AccessToken{}, model.User{}, ErrInvalidCredentials
	}
	if u.HashedPassword == nil || !utils.VerifyPassword(*u.HashedPassword, password) {
		return utils.AccessToken{}, model.User{}, ErrInvalidCredentials
	}
	if !u.IsAdmin || !u.CanAct() {
		return utils.AccessToken{}, model.User{}, ErrInvalidCredentials
	}
	tok, err := s.IssueToken(u)
	return tok, u, err
}

// Logout revokes the token. Revoking an already revoked token succeeds.
// Rows older than the token lifetime are purged on the way out.
func (s *AuthService) Logout(ctx context.Context, token string, userID uint64) error {
	uid := &userID
	if userID == 0 {
		uid = nil
	}
	if err := s.Tokens.Blacklist(ctx, token, uid); err != nil {
		return err
	}
	if n, err := s.Tokens.PurgeExpired(ctx, s.now().Add(-s.ttl())); err != nil {
		s.Log.Warn().Err(err).Msg("purge blacklisted tokens failed")
	} else if n > 0 {
		s.Log.Debug().Int64("purged", n).Msg("purged expired blacklisted tokens")
	}
	return nil
}

// Authenticate resolves a raw bearer token to its user. Bad signatures,
// expiry, revocation and unknown users are all ErrUnauthorized.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (model.User, error) {
	sub, err := utils.ParseAccessToken(s.Cfg.SecretKey, s.Cfg.Algorithm, raw)
	if err != nil {
		return model.User{}, ErrUnauthorized
	}
	revoked, err := s.Tokens.IsBlacklisted(ctx, raw)
	if err != nil {
		return model.User{}, err
	}
	if revoked {
		return model.User{}, ErrUnauthorized
	}
	var u model.User
	if sub.UserID != 0 {
		u, err = s.Users.GetByID(ctx, sub.UserID)
		if err == nil && u.PhoneNumber != sub.Phone {
			return model.User{}, ErrUnauthorized
		}
	} else {
		u, err = s.Users.GetByPhone(ctx, sub.Phone)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return model.User{}, ErrUnauthorized
	}
	return u, err
}

// CreatedAdmin carries the one-time clear password of a new admin.
type CreatedAdmin struct {
	User     model.User `json:"user"`
	Login    string     `json:"login"`
	Password string     `json:"password"`
}

// CreateAdmin registers an admin with a generated login and password. The
// password is returned here and nowhere else.
func (s *AuthService) CreateAdmin(ctx context.Context, phone string, fullname *string) (CreatedAdmin, error) {
	phone = utils.NormalizePhone(phone)
	password, err := utils.GeneratePassword()
	if err != nil {
		return CreatedAdmin{}, err
	}
	hash, err := utils.HashPassword(password, 0)
	if err != nil {
		return CreatedAdmin{}, err
	}

	var out CreatedAdmin
	err = database.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if _, err := s.Users.GetByPhoneTx(ctx, tx, phone); err == nil {
			return ErrPhoneTaken
		} else if !errors.Is(err, repository.ErrNotFound) {
			return err
		}

		login := ""
		for i := 0; i < loginAttempts; i++ {
			suffix, err := utils.GenerateLoginSuffix()
			if err != nil {
				return err
			}
			taken, err := s.Users.LoginExists(ctx, tx, "admin_"+suffix)
			if err != nil {
				return err
			}
			if !taken {
				login = "admin_" + suffix
				break
			}
		}
		if login == "" {
			return ErrLoginExhausted
		}

		id, err := s.Users.CreateTx(ctx, tx, model.User{
			PhoneNumber: phone, Login: &login, Fullname: fullname, HashedPassword: &hash,
			IsActive: true, IsAdmin: true,
		})
		if errors.Is(err, repository.ErrDuplicate) {
			return ErrPhoneTaken
		}
		if err != nil {
			return err
		}
		if err := s.Provisioner.ProvisionTx(ctx, tx, id, phone); err != nil {
			return err
		}
		u, err := s.Users.GetByIDTx(ctx, tx, id)
		if err != nil {
			return err
		}
		out = CreatedAdmin{User: u, Login: login, Password: password}
		return nil
	})
	if err != nil {
		return CreatedAdmin{}, err
	}
	s.Provisioner.SeedAchievements(ctx, out.User.ID)
	return out, nil
}
