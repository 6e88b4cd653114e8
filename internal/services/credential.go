package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rush-contest/apiserver/internal/store"
	"github.com/rush-contest/apiserver/types"
)

var (
	// ErrTokenInvalid is returned when a credential token does not match
	// the account's current state, including after the password it was
	// bound to has changed.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired is returned when a token was genuine but its time
	// window has elapsed. Callers use the distinction to offer a resend.
	ErrTokenExpired = errors.New("token expired")
)

// defaultTokenWindowDays is how many day buckets a credential token stays
// valid after issuance.
const defaultTokenWindowDays = 3

// CredentialAccountStore is the account access the token service needs.
type CredentialAccountStore interface {
	GetByID(ctx context.Context, id int) (types.Account, error)
	SetPassword(ctx context.Context, id int, hash string) error
}

// CredentialTokenService issues and validates the single-use, time-windowed
// tokens used for first-time password set and password reset.
//
// A token is an HMAC over {account id, current password hash, day bucket},
// prefixed with the bucket. Validity is derived, never stored: changing the
// password hash invalidates every token issued against the old hash, so no
// used-token bookkeeping exists to fall out of sync.
type CredentialTokenService struct {
	accounts   CredentialAccountStore
	secret     []byte
	windowDays int64
	now        func() time.Time
}

func NewCredentialTokenService(accounts CredentialAccountStore, secret string) *CredentialTokenService {
	return &CredentialTokenService{
		accounts:   accounts,
		secret:     []byte(secret),
		windowDays: defaultTokenWindowDays,
		now:        time.Now,
	}
}

// IssueToken returns an opaque reversible reference to the account and a
// token bound to its current password hash. A pure read: issuing is not a
// state transition.
func (s *CredentialTokenService) IssueToken(account types.Account) (string, string) {
	day := dayStamp(s.now())
	return encodeAccountRef(account.ID), s.sign(account, day)
}

// ValidateToken decodes the reference and checks the token against the
// account's current state. On ErrTokenExpired the account is still
// returned so the caller can trigger a resend.
func (s *CredentialTokenService) ValidateToken(ctx context.Context, ref, token string) (types.Account, error) {
	id, err := decodeAccountRef(ref)
	if err != nil {
		return types.Account{}, store.ErrNotFound
	}
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return types.Account{}, err
	}

	day, mac, ok := splitToken(token)
	if !ok {
		return types.Account{}, ErrTokenInvalid
	}
	expected := s.sign(account, day)
	if !hmac.Equal([]byte(expected), []byte(tokenWithDay(day, mac))) {
		return types.Account{}, ErrTokenInvalid
	}
	if dayStamp(s.now())-day > s.windowDays {
		return account, ErrTokenExpired
	}
	return account, nil
}

// RedeemToken validates and atomically replaces the password hash, which
// invalidates every previously issued token for the account. Activation is
// deliberately left to the caller so a reset on an active account never
// re-runs acceptance side effects.
func (s *CredentialTokenService) RedeemToken(ctx context.Context, ref, token, newPasswordHash string) (types.Account, error) {
	account, err := s.ValidateToken(ctx, ref, token)
	if err != nil {
		return types.Account{}, err
	}
	if err := s.accounts.SetPassword(ctx, account.ID, newPasswordHash); err != nil {
		return types.Account{}, err
	}
	account.PasswordHash = newPasswordHash
	return account, nil
}

func (s *CredentialTokenService) sign(account types.Account, day int64) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%d:%s:%d", account.ID, account.PasswordHash, day)
	return tokenWithDay(day, hex.EncodeToString(mac.Sum(nil)))
}

func tokenWithDay(day int64, mac string) string {
	return strconv.FormatInt(day, 36) + "-" + mac
}

func splitToken(token string) (int64, string, bool) {
	dayPart, mac, found := strings.Cut(token, "-")
	if !found || mac == "" {
		return 0, "", false
	}
	day, err := strconv.ParseInt(dayPart, 36, 64)
	if err != nil || day < 0 {
		return 0, "", false
	}
	return day, mac, true
}

func dayStamp(t time.Time) int64 {
	return t.Unix() / (24 * 60 * 60)
}

// encodeAccountRef hides the sequential account id behind a reversible
// opaque encoding for use in links.
func encodeAccountRef(id int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.Itoa(id)))
}

func decodeAccountRef(ref string) (int, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ref)
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(string(raw))
	if err != nil || id < 1 {
		return 0, errors.New("invalid account ref")
	}
	return id, nil
}
