package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/rush-contest/apiserver/internal/store"
	"github.com/rush-contest/apiserver/types"
)

// fakeStore is an in-memory stand-in for the postgres repositories,
// enforcing the same uniqueness rules the real schema does.
type fakeStore struct {
	mu     sync.Mutex
	nextID int

	accounts    map[int]types.Account
	clubs       map[int]types.Club
	schools     map[int]types.School
	contestants []types.Contestant
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		accounts: make(map[int]types.Account),
		clubs:    make(map[int]types.Club),
		schools:  make(map[int]types.School),
	}
}

func (f *fakeStore) GetByID(ctx context.Context, id int) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return types.Account{}, store.ErrNotFound
	}
	return account, nil
}

func (f *fakeStore) GetByLogin(ctx context.Context, login string) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.Login == login {
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (f *fakeStore) GetByEmail(ctx context.Context, email string) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.Email == email {
			return account, nil
		}
	}
	return types.Account{}, store.ErrNotFound
}

func (f *fakeStore) ListPending(ctx context.Context) ([]types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []types.Account
	for _, account := range f.accounts {
		if !account.Active {
			pending = append(pending, account)
		}
	}
	return pending, nil
}

func (f *fakeStore) ListNotifiable(ctx context.Context) ([]types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var notifiable []types.Account
	for _, account := range f.accounts {
		if account.Active && account.Notifications {
			notifiable = append(notifiable, account)
		}
	}
	return notifiable, nil
}

func (f *fakeStore) Create(ctx context.Context, account types.Account) (types.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.accounts {
		if existing.Email == account.Email {
			return types.Account{}, store.ErrEmailTaken
		}
		if existing.Login == account.Login {
			return types.Account{}, store.ErrLoginTaken
		}
	}
	f.nextID++
	account.ID = f.nextID
	f.accounts[account.ID] = account
	return account, nil
}

func (f *fakeStore) Activate(ctx context.Context, id int, login string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for otherID, other := range f.accounts {
		if otherID != id && other.Login == login {
			return false, store.ErrLoginTaken
		}
	}
	account, ok := f.accounts[id]
	if !ok || account.Active {
		return false, nil
	}
	account.Login = login
	account.LoginKind = types.LoginAssigned
	account.Active = true
	f.accounts[id] = account
	return true, nil
}

func (f *fakeStore) SetPassword(ctx context.Context, id int, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	account.PasswordHash = hash
	f.accounts[id] = account
	return nil
}

func (f *fakeStore) SetNotifications(ctx context.Context, id int, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return store.ErrNotFound
	}
	account.Notifications = enabled
	f.accounts[id] = account
	return nil
}

func (f *fakeStore) LoginExists(ctx context.Context, login string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, account := range f.accounts {
		if account.Login == login {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) Delete(ctx context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.accounts[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.accounts, id)
	return nil
}

func (f *fakeStore) GetClub(ctx context.Context, id int) (types.Club, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	club, ok := f.clubs[id]
	if !ok {
		return types.Club{}, store.ErrNotFound
	}
	return club, nil
}

func (f *fakeStore) GetSchool(ctx context.Context, id int) (types.School, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	school, ok := f.schools[id]
	if !ok {
		return types.School{}, store.ErrNotFound
	}
	return school, nil
}

func (f *fakeStore) ListClubs(ctx context.Context) ([]types.Club, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clubs := make([]types.Club, 0, len(f.clubs))
	for _, club := range f.clubs {
		clubs = append(clubs, club)
	}
	sort.Slice(clubs, func(i, j int) bool { return clubs[i].ID < clubs[j].ID })
	return clubs, nil
}

func (f *fakeStore) ListSchools(ctx context.Context) ([]types.School, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	schools := make([]types.School, 0, len(f.schools))
	for _, school := range f.schools {
		schools = append(schools, school)
	}
	sort.Slice(schools, func(i, j int) bool { return schools[i].ID < schools[j].ID })
	return schools, nil
}

// fakeContestants is an in-memory ContestantRepository enforcing the
// one-registration-per-contest rule for individual moderators.
type fakeContestants struct {
	mu      sync.Mutex
	nextID  int
	records []types.Contestant
}

func (f *fakeContestants) Create(ctx context.Context, contestant types.Contestant) (types.Contestant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if contestant.Individual {
		for _, existing := range f.records {
			if existing.Individual &&
				existing.ModeratorID == contestant.ModeratorID &&
				existing.ContestID == contestant.ContestID {
				return types.Contestant{}, store.ErrDuplicateRegistration
			}
		}
	}
	f.nextID++
	contestant.ID = f.nextID
	f.records = append(f.records, contestant)
	return contestant, nil
}

func (f *fakeContestants) ExistsForContest(ctx context.Context, moderatorID, contestID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.records {
		if existing.ModeratorID == moderatorID && existing.ContestID == contestID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeContestants) ListByContest(ctx context.Context, contestID int) ([]types.Contestant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []types.Contestant
	for _, existing := range f.records {
		if existing.ContestID == contestID {
			result = append(result, existing)
		}
	}
	return result, nil
}

func (f *fakeContestants) ListByModerator(ctx context.Context, contestID, moderatorID int) ([]types.Contestant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []types.Contestant
	for _, existing := range f.records {
		if existing.ContestID == contestID && existing.ModeratorID == moderatorID {
			result = append(result, existing)
		}
	}
	return result, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMailer() *Mailer {
	return NewMailer(nil, "http://localhost:8080", discardLogger())
}
