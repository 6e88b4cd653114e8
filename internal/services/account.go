package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/rush-contest/apiserver/internal/store"
	"github.com/rush-contest/apiserver/types"
)

var (
	// ErrAlreadyActive is returned when an acceptance-phase operation
	// hits an account that has already been accepted.
	ErrAlreadyActive = errors.New("account already active")

	// ErrNotActive is returned when a reset is requested for an account
	// that is not active or has never set a password.
	ErrNotActive = errors.New("account not active")

	// ErrEmailTaken is returned when a registration reuses an email.
	ErrEmailTaken = errors.New("email already registered")
)

// acceptLoginAttempts bounds re-allocation when a concurrent Accept takes
// the candidate login between our check and write.
const acceptLoginAttempts = 3

// AccountRepository defines persistence operations for accounts.
type AccountRepository interface {
	GetByID(ctx context.Context, id int) (types.Account, error)
	GetByLogin(ctx context.Context, login string) (types.Account, error)
	GetByEmail(ctx context.Context, email string) (types.Account, error)
	ListPending(ctx context.Context) ([]types.Account, error)
	ListNotifiable(ctx context.Context) ([]types.Account, error)
	Create(ctx context.Context, account types.Account) (types.Account, error)
	Activate(ctx context.Context, id int, login string) (bool, error)
	SetPassword(ctx context.Context, id int, hash string) error
	SetNotifications(ctx context.Context, id int, enabled bool) error
	LoginExists(ctx context.Context, login string) (bool, error)
	Delete(ctx context.Context, id int) error
}

// Credential is the token material handed to the mail collaborator for a
// password link.
type Credential struct {
	Ref   string `json:"ref"`
	Token string `json:"token"`
}

// SubmitRequestInput is a registration form submission.
type SubmitRequestInput struct {
	Email     string
	FirstName string
	LastName  string

	// Unit is the encoded organizer selection; ignored when Individual.
	Unit       string
	Individual bool

	Notifications bool
}

// AccountService owns the pending/active account lifecycle.
type AccountService struct {
	repo     AccountRepository
	resolver *OrganizerResolver
	logins   *LoginAllocator
	tokens   *CredentialTokenService
	mailer   *Mailer
	logger   *slog.Logger
}

func NewAccountService(
	repo AccountRepository,
	resolver *OrganizerResolver,
	logins *LoginAllocator,
	tokens *CredentialTokenService,
	mailer *Mailer,
	logger *slog.Logger,
) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		repo:     repo,
		resolver: resolver,
		logins:   logins,
		tokens:   tokens,
		mailer:   mailer,
		logger:   logger,
	}
}

func (s *AccountService) GetByID(ctx context.Context, id int) (types.Account, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *AccountService) GetByLogin(ctx context.Context, login string) (types.Account, error) {
	return s.repo.GetByLogin(ctx, login)
}

func (s *AccountService) ListPending(ctx context.Context) ([]types.Account, error) {
	return s.repo.ListPending(ctx)
}

// SubmitRequest creates a pending account with a placeholder login and no
// password. The organizer selection is resolved unless the requester
// registers as an individual contestant.
func (s *AccountService) SubmitRequest(ctx context.Context, input SubmitRequestInput) (types.Account, error) {
	var organizer types.OrganizerRef
	if !input.Individual {
		id, kind, err := s.resolver.Parse(input.Unit)
		if err != nil {
			return types.Account{}, err
		}
		organizer, err = s.resolver.Resolve(ctx, kind, id)
		if err != nil {
			return types.Account{}, err
		}
	}

	account := types.Account{
		Login:         uuid.NewString(),
		LoginKind:     types.LoginPlaceholder,
		Email:         input.Email,
		FirstName:     input.FirstName,
		LastName:      input.LastName,
		Organizer:     organizer,
		Individual:    input.Individual,
		Notifications: input.Notifications,
	}
	created, err := s.repo.Create(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return types.Account{}, ErrEmailTaken
		}
		return types.Account{}, err
	}
	s.logger.Info("account request submitted",
		slog.Int("account_id", created.ID), slog.String("email", created.Email))
	return created, nil
}

// Accept transitions a pending account to active: allocates its real
// login, issues a first-password token and hands the link parameters to
// the mail collaborator. The active flip is a storage-level compare-and-set,
// so a second Accept for the same account observes ErrAlreadyActive instead
// of issuing a second token.
func (s *AccountService) Accept(ctx context.Context, id int) (types.Account, Credential, error) {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.Account{}, Credential{}, err
	}
	if account.Active {
		return types.Account{}, Credential{}, ErrAlreadyActive
	}

	var login string
	for attempt := 0; ; attempt++ {
		login, err = s.logins.Allocate(ctx, account.FirstName, account.LastName)
		if err != nil {
			return types.Account{}, Credential{}, err
		}
		activated, err := s.repo.Activate(ctx, id, login)
		if errors.Is(err, store.ErrLoginTaken) && attempt < acceptLoginAttempts-1 {
			// Lost an allocation race; the next Allocate picks a fresh suffix.
			continue
		}
		if err != nil {
			return types.Account{}, Credential{}, err
		}
		if !activated {
			// The CAS found no pending row: either a concurrent Accept won
			// or the account was rejected meanwhile.
			if _, getErr := s.repo.GetByID(ctx, id); getErr != nil {
				return types.Account{}, Credential{}, getErr
			}
			return types.Account{}, Credential{}, ErrAlreadyActive
		}
		break
	}

	account.Login = login
	account.LoginKind = types.LoginAssigned
	account.Active = true

	ref, token := s.tokens.IssueToken(account)
	s.mailer.SendActivation(ctx, account.Email, ref, token)
	s.logger.Info("account accepted",
		slog.Int("account_id", account.ID), slog.String("login", login))
	return account, Credential{Ref: ref, Token: token}, nil
}

// Reject deletes a pending account outright. The rejection notice is
// fire-and-forget: a mail failure does not keep the record around.
func (s *AccountService) Reject(ctx context.Context, id int) error {
	account, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if account.Active {
		return ErrAlreadyActive
	}

	s.mailer.SendRejection(ctx, account.Email)
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("account rejected", slog.Int("account_id", id))
	return nil
}

// RequestPasswordReset issues a reset token for an active account with a
// set password and mails the link.
func (s *AccountService) RequestPasswordReset(ctx context.Context, email string) (types.Account, Credential, error) {
	account, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return types.Account{}, Credential{}, err
	}
	if !account.Active || !account.HasPassword() {
		return types.Account{}, Credential{}, ErrNotActive
	}

	ref, token := s.tokens.IssueToken(account)
	s.mailer.SendPasswordReset(ctx, account.Email, ref, token)
	return account, Credential{Ref: ref, Token: token}, nil
}

// ResendActivation re-issues the first-password link for an accepted
// account that never set a password, e.g. after its previous token
// expired.
func (s *AccountService) ResendActivation(ctx context.Context, account types.Account) (Credential, error) {
	if !account.Active {
		return Credential{}, ErrNotActive
	}
	if account.HasPassword() {
		return Credential{}, ErrAlreadyActive
	}
	ref, token := s.tokens.IssueToken(account)
	s.mailer.SendActivation(ctx, account.Email, ref, token)
	return Credential{Ref: ref, Token: token}, nil
}

// CancelNotifications flips the contest-announcement opt-in off.
func (s *AccountService) CancelNotifications(ctx context.Context, id int) error {
	return s.repo.SetNotifications(ctx, id, false)
}
