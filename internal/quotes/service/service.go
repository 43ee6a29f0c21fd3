package service

import (
	"context"
	"strings"
	"time"

	"crm_portal_backend/internal/auth/password"
	"crm_portal_backend/internal/events"
	"crm_portal_backend/internal/quotes/domain"
	"crm_portal_backend/internal/quotes/repository"
	"crm_portal_backend/platform/apperr"
	"crm_portal_backend/platform/config"
	"crm_portal_backend/platform/logger"
	"crm_portal_backend/platform/phone"
	"crm_portal_backend/platform/sanitize"

	"github.com/google/uuid"
)

const defaultTxTimeout = 15 * time.Second

// Store is the persistence the quotes service needs.
type Store interface {
	WithinTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, q repository.Querier) error) error
	Create(ctx context.Context, nq repository.NewQuote) (*repository.Quote, error)
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Quote, error)
}

// PasswordHasher hashes temporary passwords before they are stored.
type PasswordHasher interface {
	Hash(plain string) (string, error)
}

// ProvisionedAccount is a client account created by an acceptance. The
// temporary password only lives in memory until the welcome email is sent.
type ProvisionedAccount struct {
	User              repository.User
	TemporaryPassword string
}

// StatusChangeResult is what UpdateStatus returns after commit.
type StatusChangeResult struct {
	Quote    repository.Quote
	Previous domain.Status
	// Account is set when this change created a client account.
	Account *ProvisionedAccount
	// ExistingClient is set when the organization already had one.
	ExistingClient *repository.User
}

// Service provides business logic for quotes
type Service struct {
	store     Store
	validator *ProvisioningValidator
	hasher    PasswordHasher
	eventBus  events.Bus
	log       *logger.Logger
	txTimeout time.Duration

	now              func() time.Time
	generatePassword func() (string, error)
}

// New creates a new quotes service
func New(store Store, hasher PasswordHasher, eventBus events.Bus, cfg config.ProvisioningConfig, log *logger.Logger) *Service {
	timeout := cfg.GetStatusTxTimeout()
	if timeout <= 0 {
		timeout = defaultTxTimeout
	}
	return &Service{
		store:            store,
		validator:        NewProvisioningValidator(cfg.GetClientRoleName()),
		hasher:           hasher,
		eventBus:         eventBus,
		log:              log,
		txTimeout:        timeout,
		now:              time.Now,
		generatePassword: password.GenerateTemporary,
	}
}

// Create stores a new quotation in the uploaded state with actorID as uploader
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, leadID uuid.UUID, amountCents *int64, notes *string) (*repository.Quote, error) {
	if amountCents != nil && *amountCents < 0 {
		return nil, apperr.Validation("amount must not be negative")
	}
	return s.store.Create(ctx, repository.NewQuote{
		LeadID:      leadID,
		AmountCents: amountCents,
		Notes:       nilIfEmpty(sanitize.TextPtr(notes)),
		UploadedBy:  actorID,
	})
}

// GetByID returns a quotation that has not been deleted
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*repository.Quote, error) {
	return s.store.GetByID(ctx, id)
}

// Delete soft-deletes a quotation. Accepted quotations are kept.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.store.WithinTx(ctx, s.txTimeout, func(ctx context.Context, q repository.Querier) error {
		agg, err := q.GetQuoteForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if agg.Quote.DeletedAt != nil {
			return domain.ErrQuotationNotFound()
		}
		if err := domain.EnsureDeletable(domain.Status(agg.Quote.Status)); err != nil {
			return err
		}
		return q.SoftDeleteQuote(ctx, id)
	})
}

// UpdateStatus moves a quotation to newStatus. Accepting a quotation also
// provisions the client account for its organization in the same transaction;
// if that fails nothing is persisted. Notifications go out after commit and
// never affect the result.
func (s *Service) UpdateStatus(ctx context.Context, quoteID uuid.UUID, newStatus domain.Status, actorID uuid.UUID, notes *string) (*StatusChangeResult, error) {
	var (
		result StatusChangeResult
		event  events.QuoteStatusChanged
	)

	err := s.store.WithinTx(ctx, s.txTimeout, func(ctx context.Context, q repository.Querier) error {
		result, event = StatusChangeResult{}, events.QuoteStatusChanged{}

		agg, err := q.GetQuoteForUpdate(ctx, quoteID)
		if err != nil {
			return err
		}

		transition, err := domain.RequestTransition(domain.QuotationState{
			Status:  domain.Status(agg.Quote.Status),
			Deleted: agg.Quote.DeletedAt != nil,
		}, newStatus)
		if err != nil {
			return err
		}

		updated, err := q.UpdateQuoteStatus(ctx, repository.StatusUpdate{
			QuoteID:   quoteID,
			Status:    string(transition.To),
			ChangedBy: actorID,
			ChangedAt: s.now(),
			Notes:     appendNotes(agg.Quote.Notes, notes),
		})
		if err != nil {
			return err
		}

		if stage := domain.LeadStageForStatus(transition.To); stage != domain.LeadStageUnchanged && stage != agg.Lead.Stage {
			if err := q.UpdateLeadStage(ctx, agg.Lead.ID, stage); err != nil {
				return err
			}
		}

		contact := domain.ResolveContactInfo(contactSources(agg))
		result = StatusChangeResult{Quote: *updated, Previous: transition.From}

		if transition.RequiresProvisioning {
			if err := s.provision(ctx, q, agg, contact, &result); err != nil {
				return err
			}
		}

		event = buildStatusEvent(agg, &result, contact, actorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithContext(ctx).QuoteStatusChanged(quoteID.String(), string(result.Previous), result.Quote.Status, actorID.String())
	s.publish(ctx, event)

	return &result, nil
}

func (s *Service) provision(ctx context.Context, q repository.Querier, agg *repository.QuoteAggregate, contact domain.ContactInfo, result *StatusChangeResult) error {
	log := s.log.WithContext(ctx)
	quoteID := agg.Quote.ID.String()
	orgID := agg.Lead.OrganizationID

	if err := q.LockOrganization(ctx, orgID); err != nil {
		return err
	}

	decision, err := s.validator.Validate(ctx, q, orgID, contact)
	if err != nil {
		log.ClientProvisioning(quoteID, orgID.String(), "failed", apperr.GetCode(err))
		return err
	}

	if decision.ExistingUser != nil {
		log.ClientProvisioning(quoteID, orgID.String(), "skipped", "client account already exists")
		result.ExistingClient = decision.ExistingUser
		return nil
	}

	tempPassword, err := s.generatePassword()
	if err != nil {
		return err
	}
	hash, err := s.hasher.Hash(tempPassword)
	if err != nil {
		return err
	}

	user, err := q.CreateClientUser(ctx, repository.NewClientUser{
		Email:          strings.ToLower(decision.Contact.Email),
		FirstName:      decision.Contact.FirstName,
		LastName:       decision.Contact.LastName,
		Phone:          phone.NormalizeE164Ptr(nilIfEmpty(&decision.Contact.Phone)),
		OrganizationID: orgID,
		LeadID:         agg.Lead.ID,
		PasswordHash:   hash,
	})
	if err != nil {
		log.ClientProvisioning(quoteID, orgID.String(), "failed", apperr.GetCode(err))
		return err
	}

	if err := q.AssignRole(ctx, user.ID, decision.Role.ID); err != nil {
		return err
	}

	log.ClientProvisioning(quoteID, orgID.String(), "created", "")
	result.Account = &ProvisionedAccount{User: *user, TemporaryPassword: tempPassword}
	return nil
}

// publish does not wait for the handlers: email delivery must not hold up the
// response of a change that has already committed. Handlers outlive the
// request context and the bus logs their failures.
func (s *Service) publish(ctx context.Context, event events.QuoteStatusChanged) {
	if s.eventBus == nil {
		return
	}
	s.eventBus.Publish(context.WithoutCancel(ctx), event)
}

func contactSources(agg *repository.QuoteAggregate) domain.ContactSources {
	src := domain.ContactSources{
		LeadName:  agg.Lead.ContactName,
		LeadEmail: agg.Lead.ContactEmail,
		LeadPhone: agg.Lead.ContactPhone,
	}
	if agg.Contact != nil {
		src.Structured = &domain.ContactFields{
			FirstName: agg.Contact.FirstName,
			LastName:  agg.Contact.LastName,
			Email:     agg.Contact.Email,
			Phone:     agg.Contact.Phone,
		}
	}
	return src
}

func buildStatusEvent(agg *repository.QuoteAggregate, result *StatusChangeResult, contact domain.ContactInfo, actorID uuid.UUID) events.QuoteStatusChanged {
	event := events.QuoteStatusChanged{
		BaseEvent:         events.NewBaseEvent(),
		QuotationID:       result.Quote.ID,
		LeadID:            agg.Lead.ID,
		OrganizationID:    agg.Lead.OrganizationID,
		OrganizationName:  agg.Organization.Name,
		ActorID:           actorID,
		PreviousStatus:    string(result.Previous),
		NewStatus:         result.Quote.Status,
		AmountCents:       result.Quote.AmountCents,
		UploaderEmail:     agg.UploaderEmail,
		OrganizationEmail: agg.Organization.Email,
		ContactName:       strings.TrimSpace(contact.FirstName + " " + contact.LastName),
	}
	if agg.Contact != nil {
		event.ContactEmail = agg.Contact.Email
	}
	if result.ExistingClient != nil {
		id := result.ExistingClient.ID
		event.ExistingClientID = &id
	}
	if acc := result.Account; acc != nil {
		event.Account = &events.ProvisionedClientAccount{
			UserID:            acc.User.ID,
			Email:             acc.User.Email,
			FirstName:         deref(acc.User.FirstName),
			LastName:          deref(acc.User.LastName),
			TemporaryPassword: acc.TemporaryPassword,
		}
	}
	return event
}

// appendNotes adds sanitized notes below the existing ones.
func appendNotes(existing, added *string) *string {
	added = nilIfEmpty(sanitize.TextPtr(added))
	if added == nil {
		return existing
	}
	if current := nilIfEmpty(existing); current != nil {
		merged := *current + "\n" + *added
		return &merged
	}
	return added
}

func nilIfEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
