// Package utils provides identity primitives: tokens, passwords, phones and
// random values.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that cannot be trusted: bad
// signature, wrong algorithm, expired, or a subject that carries no phone.
var ErrInvalidToken = errors.New("invalid token")

// SubjectKind tags which historical encoding a token's "sub" claim used.
type SubjectKind int

const (
	PhoneOnly  SubjectKind = iota // "sub": "+998901234567"
	PhoneAndID                    // "sub": "+998901234567:42"
	LegacyDict                    // "sub": {"phone_number": "...", "id": 42}
)

// Subject is the normalized identity carried by a token. UserID is zero when
// the encoding did not include one.
type Subject struct {
	Kind   SubjectKind
	Phone  string
	UserID uint64
}

// String renders the canonical "<phone>:<id>" form, or just the phone when
// no id is known.
func (s Subject) String() string {
	if s.UserID == 0 {
		return s.Phone
	}
	return s.Phone + ":" + strconv.FormatUint(s.UserID, 10)
}

// AccessToken is a signed bearer token with its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// NewAccessToken signs a token for the given subject. sub may be a Subject,
// a plain string, or the legacy map form {phone_number, id}; all of them are
// written as the canonical colon-joined string.
func NewAccessToken(secret, alg string, sub any, ttl time.Duration) (AccessToken, error) {
	s, err := subjectFrom(sub)
	if err != nil {
		return AccessToken{}, err
	}
	method := signingMethod(alg)
	if method == nil {
		return AccessToken{}, fmt.Errorf("unsupported algorithm %q", alg)
	}
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub": s.String(),
		"exp": exp.Unix(),
		"iat": now.Unix(),
	}
	if s.UserID != 0 {
		claims["user_id"] = s.UserID
	}
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies signature, algorithm and expiry and extracts the
// subject from any of the three historical shapes.
func ParseAccessToken(secret, alg, raw string) (Subject, error) {
	if raw == "" {
		return Subject{}, ErrInvalidToken
	}
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{alg}), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Subject{}, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Subject{}, ErrInvalidToken
	}
	return ParseSubject(claims["sub"], claims["user_id"])
}

// ParseSubject normalizes a raw "sub" value. userIDClaim is the optional
// redundant "user_id" claim, used when sub itself carries no id.
func ParseSubject(sub any, userIDClaim any) (Subject, error) {
	var s Subject
	switch v := sub.(type) {
	case string:
		phone, id, found := strings.Cut(v, ":")
		s.Phone = strings.TrimSpace(phone)
		if found {
			n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
			if err != nil {
				return Subject{}, ErrInvalidToken
			}
			s.Kind, s.UserID = PhoneAndID, n
		} else {
			s.Kind = PhoneOnly
		}
	case map[string]any:
		s.Kind = LegacyDict
		s.Phone, _ = v["phone_number"].(string)
		s.UserID = toUint(v["id"])
	default:
		return Subject{}, ErrInvalidToken
	}
	if s.Phone == "" {
		return Subject{}, ErrInvalidToken
	}
	if s.UserID == 0 {
		s.UserID = toUint(userIDClaim)
	}
	return s, nil
}

func subjectFrom(sub any) (Subject, error) {
	switch v := sub.(type) {
	case Subject:
		if v.Phone == "" {
			return Subject{}, ErrInvalidToken
		}
		return v, nil
	case string, map[string]any:
		return ParseSubject(v, nil)
	default:
		return Subject{}, fmt.Errorf("unsupported subject type %T", sub)
	}
}

func signingMethod(alg string) jwt.SigningMethod {
	switch strings.ToUpper(alg) {
	case "HS256":
		return jwt.SigningMethodHS256
	case "HS384":
		return jwt.SigningMethodHS384
	case "HS512":
		return jwt.SigningMethodHS512
	}
	return nil
}

// toUint accepts the numeric shapes encoding/json and callers produce.
func toUint(v any) uint64 {
	switch n := v.(type) {
	case float64:
		if n > 0 {
			return uint64(n)
		}
	case int:
		if n > 0 {
			return uint64(n)
		}
	case int64:
		if n > 0 {
			return uint64(n)
		}
	case uint64:
		return n
	case string:
		u, _ := strconv.ParseUint(n, 10, 64)
		return u
	}
	return 0
}

// randomHex returns a hex string built from n bytes of crypto/rand output.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
