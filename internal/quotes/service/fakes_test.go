package service

import (
	"context"
	"errors"
	"maps"
	"strings"
	"sync"
	"time"

	"crm_portal_backend/internal/events"
	"crm_portal_backend/internal/quotes/domain"
	"crm_portal_backend/internal/quotes/repository"

	"github.com/google/uuid"
)

// memDB is an in-memory model of the quotes tables.
type memDB struct {
	quotes    map[uuid.UUID]repository.Quote
	leads     map[uuid.UUID]repository.Lead
	contacts  map[uuid.UUID]repository.Contact
	orgs      map[uuid.UUID]repository.Organization
	users     map[uuid.UUID]repository.User
	hashes    map[uuid.UUID]string
	roles     []domain.Role
	userRoles map[uuid.UUID]uuid.UUID
}

func newMemDB() *memDB {
	return &memDB{
		quotes:    map[uuid.UUID]repository.Quote{},
		leads:     map[uuid.UUID]repository.Lead{},
		contacts:  map[uuid.UUID]repository.Contact{},
		orgs:      map[uuid.UUID]repository.Organization{},
		users:     map[uuid.UUID]repository.User{},
		hashes:    map[uuid.UUID]string{},
		userRoles: map[uuid.UUID]uuid.UUID{},
	}
}

func (db *memDB) clone() *memDB {
	return &memDB{
		quotes:    maps.Clone(db.quotes),
		leads:     maps.Clone(db.leads),
		contacts:  maps.Clone(db.contacts),
		orgs:      maps.Clone(db.orgs),
		users:     maps.Clone(db.users),
		hashes:    maps.Clone(db.hashes),
		roles:     append([]domain.Role(nil), db.roles...),
		userRoles: maps.Clone(db.userRoles),
	}
}

// memStore serializes transactions with one mutex and restores a snapshot
// when the callback fails, which is what a rolled back transaction looks like
// from the outside.
type memStore struct {
	mu    sync.Mutex
	db    *memDB
	fails txFailures
}

// txFailures makes individual statements fail the way the database would,
// for example when a concurrent writer wins a unique index.
type txFailures struct {
	createClientUser error
	assignRole       error
}

func newMemStore() *memStore {
	return &memStore{db: newMemDB()}
}

func (s *memStore) WithinTx(ctx context.Context, _ time.Duration, fn func(ctx context.Context, q repository.Querier) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.db.clone()
	if err := fn(ctx, &memTx{db: s.db, fails: s.fails}); err != nil {
		s.db = snapshot
		return err
	}
	return nil
}

func (s *memStore) Create(_ context.Context, nq repository.NewQuote) (*repository.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.db.leads[nq.LeadID]; !ok {
		return nil, errors.New("lead does not exist")
	}
	now := time.Now()
	q := repository.Quote{
		ID:          uuid.New(),
		LeadID:      nq.LeadID,
		Status:      string(domain.StatusUploaded),
		AmountCents: nq.AmountCents,
		Notes:       nq.Notes,
		UploadedBy:  nq.UploadedBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.db.quotes[q.ID] = q
	return &q, nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*repository.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.db.quotes[id]
	if !ok || q.DeletedAt != nil {
		return nil, domain.ErrQuotationNotFound()
	}
	return &q, nil
}

func (s *memStore) quote(id uuid.UUID) repository.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.quotes[id]
}

func (s *memStore) lead(id uuid.UUID) repository.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.leads[id]
}

func (s *memStore) clientUsers(orgID uuid.UUID) []repository.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []repository.User
	for _, u := range s.db.users {
		if u.AccountType == domain.AccountTypeClient && u.OrganizationID != nil && *u.OrganizationID == orgID {
			out = append(out, u)
		}
	}
	return out
}

func (s *memStore) userCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.db.users)
}

func (s *memStore) roleAssignments() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.db.userRoles)
}

type memTx struct {
	db    *memDB
	fails txFailures
}

func (t *memTx) GetQuoteForUpdate(_ context.Context, id uuid.UUID) (*repository.QuoteAggregate, error) {
	q, ok := t.db.quotes[id]
	if !ok {
		return nil, domain.ErrQuotationNotFound()
	}
	lead := t.db.leads[q.LeadID]
	agg := &repository.QuoteAggregate{
		Quote:        q,
		Lead:         lead,
		Organization: t.db.orgs[lead.OrganizationID],
	}
	if lead.ContactID != nil {
		if c, ok := t.db.contacts[*lead.ContactID]; ok {
			agg.Contact = &c
		}
	}
	if u, ok := t.db.users[q.UploadedBy]; ok {
		email := u.Email
		agg.UploaderEmail = &email
	}
	return agg, nil
}

func (t *memTx) UpdateQuoteStatus(_ context.Context, u repository.StatusUpdate) (*repository.Quote, error) {
	q, ok := t.db.quotes[u.QuoteID]
	if !ok || q.DeletedAt != nil {
		return nil, domain.ErrQuotationNotFound()
	}
	changedBy, changedAt := u.ChangedBy, u.ChangedAt
	q.Status = u.Status
	q.StatusChangedBy = &changedBy
	q.StatusChangedAt = &changedAt
	q.Notes = u.Notes
	q.UpdatedAt = changedAt
	t.db.quotes[q.ID] = q
	return &q, nil
}

func (t *memTx) UpdateLeadStage(_ context.Context, leadID uuid.UUID, stage string) error {
	l := t.db.leads[leadID]
	l.Stage = stage
	t.db.leads[leadID] = l
	return nil
}

func (t *memTx) SoftDeleteQuote(_ context.Context, id uuid.UUID) error {
	q := t.db.quotes[id]
	now := time.Now()
	q.DeletedAt = &now
	t.db.quotes[id] = q
	return nil
}

func (t *memTx) LockOrganization(context.Context, uuid.UUID) error { return nil }

func (t *memTx) FindActiveClientUser(_ context.Context, orgID uuid.UUID) (*repository.User, error) {
	for _, u := range t.db.users {
		if u.AccountType == domain.AccountTypeClient && u.IsActive && u.OrganizationID != nil && *u.OrganizationID == orgID {
			return &u, nil
		}
	}
	return nil, nil
}

func (t *memTx) EmailInUse(_ context.Context, email string) (bool, error) {
	for _, u := range t.db.users {
		if strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) ListRoles(context.Context) ([]domain.Role, error) {
	return append([]domain.Role(nil), t.db.roles...), nil
}

func (t *memTx) CreateClientUser(_ context.Context, nu repository.NewClientUser) (*repository.User, error) {
	if t.fails.createClientUser != nil {
		return nil, t.fails.createClientUser
	}
	if taken, _ := t.EmailInUse(context.Background(), nu.Email); taken {
		return nil, domain.ErrEmailTaken(nu.Email)
	}
	orgID, leadID := nu.OrganizationID, nu.LeadID
	first, last := nu.FirstName, nu.LastName
	now := time.Now()
	u := repository.User{
		ID:             uuid.New(),
		Email:          nu.Email,
		FirstName:      &first,
		LastName:       &last,
		Phone:          nu.Phone,
		AccountType:    domain.AccountTypeClient,
		OrganizationID: &orgID,
		LeadID:         &leadID,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	t.db.users[u.ID] = u
	t.db.hashes[u.ID] = nu.PasswordHash
	return &u, nil
}

func (t *memTx) AssignRole(_ context.Context, userID, roleID uuid.UUID) error {
	if t.fails.assignRole != nil {
		return t.fails.assignRole
	}
	t.db.userRoles[userID] = roleID
	return nil
}

var (
	_ Store              = (*memStore)(nil)
	_ repository.Querier = (*memTx)(nil)
)

type prefixHasher struct{}

func (prefixHasher) Hash(plain string) (string, error) { return "hashed:" + plain, nil }

// recordingBus captures published events.
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) statusEvents() []events.QuoteStatusChanged {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []events.QuoteStatusChanged
	for _, e := range b.events {
		if evt, ok := e.(events.QuoteStatusChanged); ok {
			out = append(out, evt)
		}
	}
	return out
}

type testProvisioningConfig struct {
	roleName string
}

func (testProvisioningConfig) GetStatusTxTimeout() time.Duration { return time.Second }
func (testProvisioningConfig) GetPasswordBcryptCost() int        { return 4 }
func (c testProvisioningConfig) GetClientRoleName() string       { return c.roleName }
