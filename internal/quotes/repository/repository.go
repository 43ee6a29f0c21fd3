package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm_portal_backend/internal/quotes/domain"
	"crm_portal_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"

	activeClientOrgConstraint = "rac_users_active_client_org_key"

	quoteNotFoundMsg = "quotation not found"
)

// DBTX is satisfied by both the pool and a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// Querier is the set of statements available inside a lifecycle transaction.
type Querier interface {
	GetQuoteForUpdate(ctx context.Context, id uuid.UUID) (*QuoteAggregate, error)
	UpdateQuoteStatus(ctx context.Context, u StatusUpdate) (*Quote, error)
	UpdateLeadStage(ctx context.Context, leadID uuid.UUID, stage string) error
	SoftDeleteQuote(ctx context.Context, id uuid.UUID) error
	LockOrganization(ctx context.Context, organizationID uuid.UUID) error
	FindActiveClientUser(ctx context.Context, organizationID uuid.UUID) (*User, error)
	EmailInUse(ctx context.Context, email string) (bool, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
	CreateClientUser(ctx context.Context, u NewClientUser) (*User, error)
	AssignRole(ctx context.Context, userID, roleID uuid.UUID) error
}

// ── Repository ────────────────────────────────────────────────────────────────

// Repository provides database operations for quotations
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new quotes repository
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithinTx runs fn in a read committed transaction bounded by timeout. Any
// error returned by fn rolls back every statement it issued.
func (r *Repository) WithinTx(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, q Querier) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	if err := fn(ctx, &Queries{db: tx}); err != nil {
		return timeoutAware(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return timeoutAware(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

func timeoutAware(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.KindInternal, "quotation update timed out", err)
	}
	return err
}

// Create inserts a quotation in the uploaded state
func (r *Repository) Create(ctx context.Context, nq NewQuote) (*Quote, error) {
	var q Quote
	err := r.pool.QueryRow(ctx, `
		INSERT INTO RAC_quotes (id, lead_id, status, amount_cents, notes, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+quoteColumns,
		uuid.New(), nq.LeadID, string(domain.StatusUploaded), nq.AmountCents, nq.Notes, nq.UploadedBy,
	).Scan(quoteScanTargets(&q)...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, apperr.Validation("lead or uploader does not exist").WithOp("quotes.Create")
		}
		return nil, fmt.Errorf("failed to insert quotation: %w", err)
	}
	return &q, nil
}

// GetByID retrieves a quotation that has not been soft-deleted
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Quote, error) {
	var q Quote
	err := r.pool.QueryRow(ctx,
		`SELECT `+quoteColumns+` FROM RAC_quotes WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(quoteScanTargets(&q)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQuotationNotFound()
		}
		return nil, fmt.Errorf("failed to get quotation: %w", err)
	}
	return &q, nil
}

// ── Transactional queries ─────────────────────────────────────────────────────

// Queries implements Querier on top of a DBTX
type Queries struct {
	db DBTX
}

const quoteColumns = `id, lead_id, status, amount_cents, notes, uploaded_by,
	status_changed_by, status_changed_at, created_at, updated_at, deleted_at`

func quoteScanTargets(q *Quote) []interface{} {
	return []interface{}{
		&q.ID, &q.LeadID, &q.Status, &q.AmountCents, &q.Notes, &q.UploadedBy,
		&q.StatusChangedBy, &q.StatusChangedAt, &q.CreatedAt, &q.UpdatedAt, &q.DeletedAt,
	}
}

// GetQuoteForUpdate loads a quotation with its lead, contact, organization and
// uploader email, locking the quotation row until the transaction ends.
// Soft-deleted rows are returned so the caller can decide how to report them.
func (q *Queries) GetQuoteForUpdate(ctx context.Context, id uuid.UUID) (*QuoteAggregate, error) {
	var (
		agg       QuoteAggregate
		contactID *uuid.UUID
		contact   Contact
	)

	err := q.db.QueryRow(ctx, `
		SELECT q.id, q.lead_id, q.status, q.amount_cents, q.notes, q.uploaded_by,
			q.status_changed_by, q.status_changed_at, q.created_at, q.updated_at, q.deleted_at,
			l.id, l.organization_id, l.contact_id, l.contact_name, l.contact_email, l.contact_phone, l.stage,
			c.id, c.first_name, c.last_name, c.email, c.phone,
			o.id, o.name, o.email,
			u.email
		FROM RAC_quotes q
		JOIN RAC_leads l ON l.id = q.lead_id
		JOIN RAC_organizations o ON o.id = l.organization_id
		LEFT JOIN RAC_contacts c ON c.id = l.contact_id
		LEFT JOIN RAC_users u ON u.id = q.uploaded_by
		WHERE q.id = $1
		FOR UPDATE OF q`, id,
	).Scan(
		&agg.Quote.ID, &agg.Quote.LeadID, &agg.Quote.Status, &agg.Quote.AmountCents, &agg.Quote.Notes, &agg.Quote.UploadedBy,
		&agg.Quote.StatusChangedBy, &agg.Quote.StatusChangedAt, &agg.Quote.CreatedAt, &agg.Quote.UpdatedAt, &agg.Quote.DeletedAt,
		&agg.Lead.ID, &agg.Lead.OrganizationID, &agg.Lead.ContactID, &agg.Lead.ContactName, &agg.Lead.ContactEmail, &agg.Lead.ContactPhone, &agg.Lead.Stage,
		&contactID, &contact.FirstName, &contact.LastName, &contact.Email, &contact.Phone,
		&agg.Organization.ID, &agg.Organization.Name, &agg.Organization.Email,
		&agg.UploaderEmail,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQuotationNotFound()
		}
		return nil, fmt.Errorf("failed to load quotation: %w", err)
	}

	if contactID != nil {
		contact.ID = *contactID
		agg.Contact = &contact
	}
	return &agg, nil
}

// UpdateQuoteStatus persists a status change and returns the updated row
func (q *Queries) UpdateQuoteStatus(ctx context.Context, u StatusUpdate) (*Quote, error) {
	var out Quote
	err := q.db.QueryRow(ctx, `
		UPDATE RAC_quotes
		SET status = $2, status_changed_by = $3, status_changed_at = $4, notes = $5, updated_at = $4
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING `+quoteColumns,
		u.QuoteID, u.Status, u.ChangedBy, u.ChangedAt, u.Notes,
	).Scan(quoteScanTargets(&out)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrQuotationNotFound()
		}
		return nil, fmt.Errorf("failed to update quotation status: %w", err)
	}
	return &out, nil
}

// UpdateLeadStage moves a lead to a new pipeline stage
func (q *Queries) UpdateLeadStage(ctx context.Context, leadID uuid.UUID, stage string) error {
	result, err := q.db.Exec(ctx,
		`UPDATE RAC_leads SET stage = $2, updated_at = now() WHERE id = $1`, leadID, stage)
	if err != nil {
		return fmt.Errorf("failed to update lead stage: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound("lead not found")
	}
	return nil
}

// SoftDeleteQuote marks a quotation as deleted
func (q *Queries) SoftDeleteQuote(ctx context.Context, id uuid.UUID) error {
	result, err := q.db.Exec(ctx,
		`UPDATE RAC_quotes SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete quotation: %w", err)
	}
	if result.RowsAffected() == 0 {
		return apperr.NotFound(quoteNotFoundMsg).WithCode(domain.CodeNotFound)
	}
	return nil
}

// LockOrganization serializes client provisioning for one organization until
// the transaction ends.
func (q *Queries) LockOrganization(ctx context.Context, organizationID uuid.UUID) error {
	if _, err := q.db.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended('client_provisioning:' || $1::text, 0))`,
		organizationID,
	); err != nil {
		return fmt.Errorf("failed to lock organization: %w", err)
	}
	return nil
}

// FindActiveClientUser returns the organization's active client account, or nil
func (q *Queries) FindActiveClientUser(ctx context.Context, organizationID uuid.UUID) (*User, error) {
	var u User
	err := q.db.QueryRow(ctx, `
		SELECT `+userColumns+`
		FROM RAC_users
		WHERE organization_id = $1 AND account_type = $2 AND is_active
		ORDER BY created_at
		LIMIT 1`, organizationID, domain.AccountTypeClient,
	).Scan(userScanTargets(&u)...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find client account: %w", err)
	}
	return &u, nil
}

// EmailInUse reports whether any account already uses email, ignoring case
func (q *Queries) EmailInUse(ctx context.Context, email string) (bool, error) {
	var exists bool
	if err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM RAC_users WHERE lower(email) = lower($1))`, email,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return exists, nil
}

// ListRoles returns all roles in creation order
func (q *Queries) ListRoles(ctx context.Context) ([]domain.Role, error) {
	rows, err := q.db.Query(ctx, `SELECT id, name FROM RAC_roles ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var role domain.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate roles: %w", err)
	}
	return roles, nil
}

const userColumns = `id, email, first_name, last_name, phone, account_type,
	organization_id, lead_id, is_active, created_at, updated_at`

func userScanTargets(u *User) []interface{} {
	return []interface{}{
		&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Phone, &u.AccountType,
		&u.OrganizationID, &u.LeadID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	}
}

// CreateClientUser inserts an active client account. A unique violation on the
// email surfaces as email_taken.
func (q *Queries) CreateClientUser(ctx context.Context, nu NewClientUser) (*User, error) {
	var u User
	err := q.db.QueryRow(ctx, `
		INSERT INTO RAC_users (
			id, email, first_name, last_name, phone, account_type,
			organization_id, lead_id, is_active, password_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, true, $9)
		RETURNING `+userColumns,
		uuid.New(), nu.Email, nu.FirstName, nu.LastName, nu.Phone, domain.AccountTypeClient,
		nu.OrganizationID, nu.LeadID, nu.PasswordHash,
	).Scan(userScanTargets(&u)...)
	if err != nil {
		return nil, clientUserInsertError(err, nu.Email)
	}
	return &u, nil
}

// clientUserInsertError maps unique violations raised by a concurrent writer
// onto the lifecycle's error codes.
func clientUserInsertError(err error, email string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		if pgErr.ConstraintName == activeClientOrgConstraint {
			return domain.ErrClientAccountExists()
		}
		return domain.ErrEmailTaken(email)
	}
	return fmt.Errorf("failed to insert client account: %w", err)
}

// AssignRole links a user to a role
func (q *Queries) AssignRole(ctx context.Context, userID, roleID uuid.UUID) error {
	if _, err := q.db.Exec(ctx,
		`INSERT INTO RAC_user_roles (user_id, role_id) VALUES ($1, $2)`, userID, roleID,
	); err != nil {
		return fmt.Errorf("failed to assign role: %w", err)
	}
	return nil
}

var _ Querier = (*Queries)(nil)
