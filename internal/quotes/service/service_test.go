package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crm_portal_backend/internal/auth/password"
	"crm_portal_backend/internal/events"
	"crm_portal_backend/internal/quotes/domain"
	"crm_portal_backend/internal/quotes/repository"
	"crm_portal_backend/platform/apperr"
	"crm_portal_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store *memStore
	bus   *recordingBus
	svc   *Service

	orgID      uuid.UUID
	leadID     uuid.UUID
	quoteID    uuid.UUID
	uploaderID uuid.UUID
	actorID    uuid.UUID
}

func strPtr(s string) *string { return &s }

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:      newMemStore(),
		bus:        &recordingBus{},
		orgID:      uuid.New(),
		leadID:     uuid.New(),
		uploaderID: uuid.New(),
		actorID:    uuid.New(),
	}

	db := f.store.db
	db.orgs[f.orgID] = repository.Organization{ID: f.orgID, Name: "Acme BV", Email: strPtr("info@acme.test")}
	db.leads[f.leadID] = repository.Lead{ID: f.leadID, OrganizationID: f.orgID, Stage: "Estimation"}
	db.users[f.uploaderID] = repository.User{ID: f.uploaderID, Email: "sales@crm.test", AccountType: "staff", IsActive: true}
	db.roles = []domain.Role{{ID: uuid.New(), Name: "Admin"}, {ID: uuid.New(), Name: "Client User"}}
	f.quoteID = f.addQuote(f.leadID, domain.StatusUploaded)

	f.svc = New(f.store, prefixHasher{}, f.bus, testProvisioningConfig{}, logger.New("test"))
	return f
}

func (f *fixture) addQuote(leadID uuid.UUID, status domain.Status) uuid.UUID {
	id := uuid.New()
	f.store.db.quotes[id] = repository.Quote{
		ID:         id,
		LeadID:     leadID,
		Status:     string(status),
		UploadedBy: f.uploaderID,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	return id
}

func (f *fixture) addLead(contact *repository.Contact) uuid.UUID {
	id := uuid.New()
	lead := repository.Lead{ID: id, OrganizationID: f.orgID, Stage: "Estimation"}
	if contact != nil {
		contact.ID = uuid.New()
		f.store.db.contacts[contact.ID] = *contact
		lead.ContactID = &contact.ID
	}
	f.store.db.leads[id] = lead
	return id
}

func (f *fixture) withContact(c repository.Contact) {
	c.ID = uuid.New()
	f.store.db.contacts[c.ID] = c
	lead := f.store.db.leads[f.leadID]
	lead.ContactID = &c.ID
	f.store.db.leads[f.leadID] = lead
}

func (f *fixture) withLeadFields(name, email, phone *string) {
	lead := f.store.db.leads[f.leadID]
	lead.ContactName, lead.ContactEmail, lead.ContactPhone = name, email, phone
	f.store.db.leads[f.leadID] = lead
}

func (f *fixture) withRoles(names ...string) {
	f.store.db.roles = nil
	for _, n := range names {
		f.store.db.roles = append(f.store.db.roles, domain.Role{ID: uuid.New(), Name: n})
	}
}

func (f *fixture) addClientUser(email string, active bool) uuid.UUID {
	id, orgID := uuid.New(), f.orgID
	f.store.db.users[id] = repository.User{
		ID: id, Email: email, AccountType: domain.AccountTypeClient,
		OrganizationID: &orgID, IsActive: active,
	}
	return id
}

func anaLee() repository.Contact {
	return repository.Contact{Email: strPtr("a@x.com"), FirstName: strPtr("Ana"), LastName: strPtr("Lee")}
}

func (f *fixture) accept(t *testing.T, quoteID uuid.UUID) (*StatusChangeResult, error) {
	t.Helper()
	return f.svc.UpdateStatus(context.Background(), quoteID, domain.StatusAccepted, f.actorID, nil)
}

func TestUpdateStatusAcceptProvisionsClientAccount(t *testing.T) {
	f := newFixture(t)
	f.withContact(anaLee())

	result, err := f.accept(t, f.quoteID)
	require.NoError(t, err)

	assert.Equal(t, string(domain.StatusAccepted), result.Quote.Status)
	assert.Equal(t, domain.StatusUploaded, result.Previous)
	require.NotNil(t, result.Quote.StatusChangedAt)
	require.NotNil(t, result.Quote.StatusChangedBy)
	assert.Equal(t, f.actorID, *result.Quote.StatusChangedBy)

	users := f.store.clientUsers(f.orgID)
	require.Len(t, users, 1)
	user := users[0]
	assert.Equal(t, "a@x.com", user.Email)
	assert.True(t, user.IsActive)
	assert.Equal(t, domain.AccountTypeClient, user.AccountType)
	assert.Equal(t, "Ana", *user.FirstName)
	assert.Equal(t, "Lee", *user.LastName)
	require.NotNil(t, user.LeadID)
	assert.Equal(t, f.leadID, *user.LeadID)

	require.NotNil(t, result.Account)
	assert.Len(t, result.Account.TemporaryPassword, password.TemporaryLength)
	assert.Equal(t, "hashed:"+result.Account.TemporaryPassword, f.store.db.hashes[user.ID])
	assert.Equal(t, f.store.db.roles[1].ID, f.store.db.userRoles[user.ID])

	assert.Equal(t, domain.LeadStageFulfillment, f.store.lead(f.leadID).Stage)
}

func TestUpdateStatusAcceptMatchesRoleWithoutSpace(t *testing.T) {
	f := newFixture(t)
	f.withContact(anaLee())
	f.withRoles("Admin", "ClientUser")

	result, err := f.accept(t, f.quoteID)
	require.NoError(t, err)
	require.NotNil(t, result.Account)
	assert.Equal(t, f.store.db.roles[1].ID, f.store.db.userRoles[result.Account.User.ID])
}

func TestUpdateStatusAcceptSkipsWhenClientExists(t *testing.T) {
	f := newFixture(t)
	f.withContact(anaLee())
	existingID := f.addClientUser("first@acme.test", true)

	result, err := f.accept(t, f.quoteID)
	require.NoError(t, err)

	assert.Equal(t, string(domain.StatusAccepted), f.store.quote(f.quoteID).Status)
	assert.Nil(t, result.Account)
	require.NotNil(t, result.ExistingClient)
	assert.Equal(t, existingID, result.ExistingClient.ID)
	assert.Len(t, f.store.clientUsers(f.orgID), 1)
}

func TestUpdateStatusAcceptIgnoresInactiveClientOfOrganization(t *testing.T) {
	f := newFixture(t)
	f.withContact(anaLee())
	f.addClientUser("old@acme.test", false)

	result, err := f.accept(t, f.quoteID)
	require.NoError(t, err)
	require.NotNil(t, result.Account)
	assert.Len(t, f.store.clientUsers(f.orgID), 2)
}

func TestUpdateStatusAcceptWithoutEmailRollsBack(t *testing.T) {
	f := newFixture(t)
	f.withLeadFields(strPtr("Ana Lee"), nil, nil)
	f.store.db.quotes[f.quoteID] = func() repository.Quote {
		q := f.store.db.quotes[f.quoteID]
		q.Status = string(domain.StatusSent)
		return q
	}()

	result, err := f.accept(t, f.quoteID)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, string(domain.ReasonMissingEmail), apperr.GetCode(err))
	assert.Equal(t, apperr.KindValidation, apperr.GetKind(err))

	q := f.store.quote(f.quoteID)
	assert.Equal(t, string(domain.StatusSent), q.Status)
	assert.Nil(t, q.StatusChangedAt)
	assert.Equal(t, "Estimation", f.store.lead(f.leadID).Stage)
	assert.Empty(t, f.store.clientUsers(f.orgID))
	assert.Empty(t, f.bus.statusEvents())
}

func TestUpdateStatusAcceptProvisioningFailures(t *testing.T) {
	cases := []struct {
		name   string
		setup  func(f *fixture)
		reason domain.ProvisioningReason
		msg    string
	}{
		{
			name: "email used by another account",
			setup: func(f *fixture) {
				f.withContact(anaLee())
				f.store.db.users[uuid.New()] = repository.User{Email: "A@X.com", AccountType: "staff", IsActive: false}
			},
			reason: domain.ReasonEmailTaken,
		},
		{
			name: "no client role",
			setup: func(f *fixture) {
				f.withContact(anaLee())
				f.withRoles("Admin", "Staff")
			},
			reason: domain.ReasonRoleNotFound,
			msg:    "Client User role not found in the system; available roles: Admin, Staff",
		},
		{
			name: "no name anywhere",
			setup: func(f *fixture) {
				f.withLeadFields(nil, strPtr("anon@x.com"), nil)
			},
			reason: domain.ReasonMissingName,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			tc.setup(f)

			_, err := f.accept(t, f.quoteID)
			require.Error(t, err)
			assert.Equal(t, string(tc.reason), apperr.GetCode(err))
			if tc.msg != "" {
				assert.Equal(t, tc.msg, err.Error())
			}
			assert.Equal(t, string(domain.StatusUploaded), f.store.quote(f.quoteID).Status)
			assert.Empty(t, f.store.clientUsers(f.orgID))
		})
	}
}

func TestUpdateStatusAcceptTwice(t *testing.T) {
	f := newFixture(t)
	f.withContact(anaLee())

	_, err := f.accept(t, f.quoteID)
	require.NoError(t, err)

	_, err = f.accept(t, f.quoteID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidTransition, apperr.GetCode(err))
	assert.Len(t, f.store.clientUsers(f.orgID), 1)
}

func TestUpdateStatusRejectsIllegalTransitions(t *testing.T) {
	targets := []domain.Status{domain.StatusUploaded, domain.StatusSent, domain.StatusAccepted, domain.StatusRejected, "bogus"}

	for _, from := range []domain.Status{domain.StatusUploaded, domain.StatusSent, domain.StatusAccepted, domain.StatusRejected} {
		for _, to := range targets {
			if from == domain.StatusUploaded && to != domain.StatusUploaded && to != "bogus" {
				continue
			}
			if from == domain.StatusSent && (to == domain.StatusAccepted || to == domain.StatusRejected) {
				continue
			}

			f := newFixture(t)
			quoteID := f.addQuote(f.leadID, from)

			_, err := f.svc.UpdateStatus(context.Background(), quoteID, to, f.actorID, strPtr("note"))
			require.Error(t, err, "%s -> %s", from, to)
			assert.Equal(t, domain.CodeInvalidTransition, apperr.GetCode(err), "%s -> %s", from, to)
			assert.Equal(t, string(from), f.store.quote(quoteID).Status)
			assert.Nil(t, f.store.quote(quoteID).Notes)
		}
	}
}

func TestUpdateStatusUnknownOrDeletedQuote(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateStatus(context.Background(), uuid.New(), domain.StatusSent, f.actorID, nil)
	assert.Equal(t, apperr.KindNotFound, apperr.GetKind(err))

	require.NoError(t, f.svc.Delete(context.Background(), f.quoteID))
	_, err = f.svc.UpdateStatus(context.Background(), f.quoteID, domain.StatusSent, f.actorID, nil)
	assert.Equal(t, apperr.KindNotFound, apperr.GetKind(err))
}

func TestUpdateStatusSentAppendsNotesAndMovesLead(t *testing.T) {
	f := newFixture(t)
	q := f.store.db.quotes[f.quoteID]
	q.Notes = strPtr("Uploaded by sales")
	f.store.db.quotes[f.quoteID] = q

	result, err := f.svc.UpdateStatus(context.Background(), f.quoteID, domain.StatusSent, f.actorID, strPtr("<b>Sent</b> by email"))
	require.NoError(t, err)

	require.NotNil(t, result.Quote.Notes)
	assert.Equal(t, "Uploaded by sales\nSent by email", *result.Quote.Notes)
	assert.Nil(t, result.Account)
	assert.Equal(t, domain.LeadStageProposal, f.store.lead(f.leadID).Stage)
}

func TestUpdateStatusRejectMovesLeadToLost(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateStatus(context.Background(), f.quoteID, domain.StatusRejected, f.actorID, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStageLost, f.store.lead(f.leadID).Stage)
	assert.Empty(t, f.store.clientUsers(f.orgID))
}

func TestUpdateStatusPublishesEventAfterCommit(t *testing.T) {
	f := newFixture(t)
	f.withContact(anaLee())

	result, err := f.accept(t, f.quoteID)
	require.NoError(t, err)

	evts := f.bus.statusEvents()
	require.Len(t, evts, 1)
	evt := evts[0]
	assert.Equal(t, f.quoteID, evt.QuotationID)
	assert.Equal(t, "uploaded", evt.PreviousStatus)
	assert.Equal(t, "accepted", evt.NewStatus)
	assert.Equal(t, "Acme BV", evt.OrganizationName)
	assert.Equal(t, "sales@crm.test", *evt.UploaderEmail)
	assert.Equal(t, "a@x.com", *evt.ContactEmail)
	assert.Equal(t, "Ana Lee", evt.ContactName)
	require.NotNil(t, evt.Account)
	assert.Equal(t, result.Account.TemporaryPassword, evt.Account.TemporaryPassword)
}

func TestUpdateStatusDoesNotWaitForNotifications(t *testing.T) {
	f := newFixture(t)
	f.withContact(anaLee())

	bus := events.NewInMemoryBus(logger.New("test"))
	release := make(chan struct{})
	handled := make(chan error, 1)
	bus.Subscribe(events.QuoteStatusChanged{}.EventName(), events.HandlerFunc(func(ctx context.Context, _ events.Event) error {
		<-release
		handled <- ctx.Err()
		return errors.New("smtp down")
	}))
	f.svc.eventBus = bus

	ctx, cancel := context.WithCancel(context.Background())
	result, err := f.svc.UpdateStatus(ctx, f.quoteID, domain.StatusAccepted, f.actorID, nil)
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusAccepted), result.Quote.Status)
	assert.Equal(t, string(domain.StatusAccepted), f.store.quote(f.quoteID).Status)

	cancel()
	close(release)
	bus.Wait()
	assert.NoError(t, <-handled)
}

func TestUpdateStatusAcceptRollsBackWhenStoreFailsAfterValidation(t *testing.T) {
	cases := []struct {
		name  string
		fails txFailures
		kind  apperr.Kind
		code  string
		cause error
	}{
		{
			name:  "email claimed by a concurrent writer",
			fails: txFailures{createClientUser: domain.ErrEmailTaken("a@x.com")},
			kind:  apperr.KindValidation,
			code:  string(domain.ReasonEmailTaken),
		},
		{
			name:  "organization account created concurrently",
			fails: txFailures{createClientUser: domain.ErrClientAccountExists()},
			kind:  apperr.KindConflict,
			code:  domain.CodeClientAccountExists,
		},
		{
			name:  "transaction deadline while inserting the account",
			fails: txFailures{createClientUser: context.DeadlineExceeded},
			kind:  apperr.KindUnknown,
			cause: context.DeadlineExceeded,
		},
		{
			name:  "role assignment fails",
			fails: txFailures{assignRole: errConnReset},
			kind:  apperr.KindUnknown,
			cause: errConnReset,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.withContact(anaLee())
			f.store.fails = tc.fails
			usersBefore := f.store.userCount()

			result, err := f.accept(t, f.quoteID)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tc.kind, apperr.GetKind(err))
			assert.Equal(t, tc.code, apperr.GetCode(err))
			if tc.cause != nil {
				assert.ErrorIs(t, err, tc.cause)
			}

			q := f.store.quote(f.quoteID)
			assert.Equal(t, string(domain.StatusUploaded), q.Status)
			assert.Nil(t, q.StatusChangedAt)
			assert.Equal(t, "Estimation", f.store.lead(f.leadID).Stage)
			assert.Equal(t, usersBefore, f.store.userCount())
			assert.Empty(t, f.store.clientUsers(f.orgID))
			assert.Zero(t, f.store.roleAssignments())
			assert.Empty(t, f.bus.statusEvents())
		})
	}
}

var errConnReset = errors.New("connection reset by peer")

func TestUpdateStatusNormalizesProvisionedPhone(t *testing.T) {
	f := newFixture(t)
	f.withLeadFields(strPtr("John Q Public"), strPtr("john@x.com"), strPtr("06 12345678"))

	result, err := f.accept(t, f.quoteID)
	require.NoError(t, err)
	require.NotNil(t, result.Account)

	user := result.Account.User
	assert.Equal(t, "John", *user.FirstName)
	assert.Equal(t, "Q Public", *user.LastName)
	require.NotNil(t, user.Phone)
	assert.Equal(t, "+31612345678", *user.Phone)
}

func TestConcurrentAcceptsForSameOrganizationCreateOneAccount(t *testing.T) {
	f := newFixture(t)
	leadA := f.addLead(&repository.Contact{Email: strPtr("a@x.com"), FirstName: strPtr("Ana"), LastName: strPtr("Lee")})
	leadB := f.addLead(&repository.Contact{Email: strPtr("b@x.com"), FirstName: strPtr("Bo"), LastName: strPtr("Ng")})
	quotes := []uuid.UUID{f.addQuote(leadA, domain.StatusSent), f.addQuote(leadB, domain.StatusSent)}

	var wg sync.WaitGroup
	errs := make([]error, len(quotes))
	results := make([]*StatusChangeResult, len(quotes))
	for i, id := range quotes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = f.accept(t, id)
		}()
	}
	wg.Wait()

	created, skipped := 0, 0
	for i := range quotes {
		require.NoError(t, errs[i])
		assert.Equal(t, string(domain.StatusAccepted), f.store.quote(quotes[i]).Status)
		if results[i].Account != nil {
			created++
		}
		if results[i].ExistingClient != nil {
			skipped++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, skipped)
	assert.Len(t, f.store.clientUsers(f.orgID), 1)
}

func TestCreateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	amount := int64(125000)

	q, err := f.svc.Create(ctx, f.uploaderID, f.leadID, &amount, strPtr("  "))
	require.NoError(t, err)
	assert.Equal(t, string(domain.StatusUploaded), q.Status)
	assert.Nil(t, q.Notes)

	got, err := f.svc.GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, amount, *got.AmountCents)

	require.NoError(t, f.svc.Delete(ctx, q.ID))
	_, err = f.svc.GetByID(ctx, q.ID)
	assert.Equal(t, apperr.KindNotFound, apperr.GetKind(err))

	negative := int64(-1)
	_, err = f.svc.Create(ctx, f.uploaderID, f.leadID, &negative, nil)
	assert.Equal(t, apperr.KindValidation, apperr.GetKind(err))
}

func TestDeleteAcceptedQuoteIsLocked(t *testing.T) {
	f := newFixture(t)
	f.withContact(anaLee())
	_, err := f.accept(t, f.quoteID)
	require.NoError(t, err)

	err = f.svc.Delete(context.Background(), f.quoteID)
	require.Error(t, err)
	assert.Equal(t, domain.CodeQuotationLocked, apperr.GetCode(err))
	assert.Nil(t, f.store.quote(f.quoteID).DeletedAt)
}
