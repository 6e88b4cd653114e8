package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rush-contest/apiserver/internal/store"
	"github.com/rush-contest/apiserver/types"
)

func newTestTokenService(accounts CredentialAccountStore, now *time.Time) *CredentialTokenService {
	svc := NewCredentialTokenService(accounts, "test-secret")
	svc.now = func() time.Time { return *now }
	return svc
}

func seedActiveAccount(t *testing.T, fs *fakeStore, email, hash string) types.Account {
	t.Helper()
	account, err := fs.Create(context.Background(), types.Account{
		Login:        email,
		Email:        email,
		PasswordHash: hash,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return account
}

func TestTokenRoundTrip(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(fs, &now)
	account := seedActiveAccount(t, fs, "a@example.com", "oldhash")

	ref, token := svc.IssueToken(account)
	got, err := svc.ValidateToken(context.Background(), ref, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if got.ID != account.ID {
		t.Fatalf("validated account ID = %d, want %d", got.ID, account.ID)
	}
}

func TestTokenInvalidatedByPasswordChange(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(fs, &now)
	account := seedActiveAccount(t, fs, "a@example.com", "oldhash")

	ref, token := svc.IssueToken(account)
	if err := fs.SetPassword(context.Background(), account.ID, "newhash"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}

	if _, err := svc.ValidateToken(context.Background(), ref, token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("ValidateToken error = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenExpiresAfterWindow(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(fs, &now)
	account := seedActiveAccount(t, fs, "a@example.com", "oldhash")

	ref, token := svc.IssueToken(account)

	// Still valid on the last day of the window.
	now = now.AddDate(0, 0, 3)
	if _, err := svc.ValidateToken(context.Background(), ref, token); err != nil {
		t.Fatalf("ValidateToken at window edge: %v", err)
	}

	now = now.AddDate(0, 0, 1)
	got, err := svc.ValidateToken(context.Background(), ref, token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("ValidateToken error = %v, want ErrTokenExpired", err)
	}
	// The account must still come back so the caller can offer a resend.
	if got.ID != account.ID {
		t.Fatalf("expired validation returned account ID %d, want %d", got.ID, account.ID)
	}
}

func TestTokenTampered(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(fs, &now)
	account := seedActiveAccount(t, fs, "a@example.com", "oldhash")

	ref, token := svc.IssueToken(account)

	for _, bad := range []string{
		token + "x",
		"zz-deadbeef",
		"not-a-token",
		"",
	} {
		if _, err := svc.ValidateToken(context.Background(), ref, bad); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("ValidateToken(%q) error = %v, want ErrTokenInvalid", bad, err)
		}
	}
}

func TestTokenUnknownRef(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(fs, &now)

	if _, err := svc.ValidateToken(context.Background(), "%%%", "1-abc"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("ValidateToken with bad ref error = %v, want ErrNotFound", err)
	}
	if _, err := svc.ValidateToken(context.Background(), encodeAccountRef(42), "1-abc"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("ValidateToken with missing account error = %v, want ErrNotFound", err)
	}
}

func TestRedeemTokenReplacesPasswordAndInvalidates(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestTokenService(fs, &now)
	account := seedActiveAccount(t, fs, "a@example.com", "")

	ref, token := svc.IssueToken(account)
	redeemed, err := svc.RedeemToken(context.Background(), ref, token, "newhash")
	if err != nil {
		t.Fatalf("RedeemToken: %v", err)
	}
	if redeemed.PasswordHash != "newhash" {
		t.Fatalf("redeemed hash = %q, want %q", redeemed.PasswordHash, "newhash")
	}

	stored, err := fs.GetByID(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.PasswordHash != "newhash" {
		t.Fatalf("stored hash = %q, want %q", stored.PasswordHash, "newhash")
	}

	// Redemption rebinds validity to the new hash.
	if _, err := svc.RedeemToken(context.Background(), ref, token, "otherhash"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("second redeem error = %v, want ErrTokenInvalid", err)
	}
}
