// Package approval moves a business from pending (or suspended) to approved
// and hands the owner a link into phase 2 of onboarding.
//
// Only the atomic activation can fail an approval once the caller and the
// business have been checked. Everything after it is best effort and is
// reported per step in the Outcome.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Iridium40/roam-platform-sub004/internal/approvaltoken"
	"github.com/Iridium40/roam-platform-sub004/internal/models"
	"github.com/Iridium40/roam-platform-sub004/internal/notify"
	"github.com/Iridium40/roam-platform-sub004/internal/verification"
)

const DefaultStepTimeout = 10 * time.Second

// Store is the slice of the data store the orchestrator needs.
type Store interface {
	FindBusinesses(ctx context.Context, id uuid.UUID) ([]models.Business, error)
	ApproveAndActivate(ctx context.Context, businessID, adminID uuid.UUID, notes string) (models.Activation, error)
	FindMemberByRole(ctx context.Context, businessID uuid.UUID, role models.MemberRole) (models.Member, error)
	FindApplicationByBusiness(ctx context.Context, businessID uuid.UUID) (*models.Application, error)
	UpdateApplicationStatus(ctx context.Context, app models.Application) error
	CreateApprovalRecord(ctx context.Context, rec models.ApprovalRecord) error
	UpsertSetupProgress(ctx context.Context, p models.SetupProgress) error
}

type IdentityProvider interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

type Mailer interface {
	Send(ctx context.Context, msg notify.Message) error
}

type Options struct {
	// BaseURL is the public origin of the onboarding app.
	BaseURL     string
	StepTimeout time.Duration
	Now         func() time.Time
	Tracer      trace.Tracer
}

type Service struct {
	store    Store
	identity IdentityProvider
	mailer   Mailer
	codec    *approvaltoken.Codec

	baseURL     string
	stepTimeout time.Duration
	now         func() time.Time
	tracer      trace.Tracer
}

func NewService(store Store, identity IdentityProvider, mailer Mailer, codec *approvaltoken.Codec, opts Options) *Service {
	s := &Service{
		store:       store,
		identity:    identity,
		mailer:      mailer,
		codec:       codec,
		baseURL:     opts.BaseURL,
		stepTimeout: opts.StepTimeout,
		now:         opts.Now,
		tracer:      opts.Tracer,
	}
	if s.stepTimeout <= 0 {
		s.stepTimeout = DefaultStepTimeout
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/Iridium40/roam-platform-sub004/internal/approval")
	}
	return s
}

type Request struct {
	BusinessID  uuid.UUID
	AdminUserID uuid.UUID
	Notes       string
	SendEmail   bool
}

type EmailStatus struct {
	Sent      bool   `json:"sent"`
	Recipient string `json:"recipient,omitempty"`
	Warning   string `json:"warning,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Outcome is returned whenever the activation committed.
type Outcome struct {
	BusinessID  uuid.UUID
	Activation  models.Activation
	Token       string
	TokenClaims approvaltoken.Claims
	URL         string
	EmailStatus EmailStatus
	ApprovedAt  time.Time
	ApprovedBy  uuid.UUID
	// OwnerErr is set when no owner could be resolved and so no link exists.
	OwnerErr *Error
	Steps    []StepResult
}

// Degraded reports whether any step failed.
func (o *Outcome) Degraded() bool {
	for _, s := range o.Steps {
		if s.Status == StepFailed {
			return true
		}
	}
	return false
}

var errNoRecipient = errors.New("no recipient email address on file")

// Approve runs the approval for req.BusinessID. A non-nil error means nothing
// was committed.
func (s *Service) Approve(ctx context.Context, req Request) (*Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "approval.Approve", trace.WithAttributes(
		attribute.String("business.id", req.BusinessID.String()),
		attribute.String("admin.id", req.AdminUserID.String()),
	))
	defer span.End()

	out, err := s.approve(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(KindOf(err)))
		slog.InfoContext(ctx, "approval refused", "business_id", req.BusinessID.String(), "kind", string(KindOf(err)), "err", err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("approval.degraded", out.Degraded()))
	slog.InfoContext(ctx, "business approved",
		"business_id", out.BusinessID.String(),
		"approved_by", out.ApprovedBy.String(),
		"token_issued", out.Token != "",
		"email_sent", out.EmailStatus.Sent,
		"degraded", out.Degraded())
	return out, nil
}

func (s *Service) approve(ctx context.Context, req Request) (*Outcome, error) {
	if req.BusinessID == uuid.Nil || req.AdminUserID == uuid.Nil {
		return nil, newError(KindValidation, "businessId and adminUserId are required", nil)
	}
	rec := &recorder{timeout: s.stepTimeout, tracer: s.tracer}
	notes := strings.TrimSpace(req.Notes)

	admin, err := fatal(ctx, rec, StepAuthorize, func(ctx context.Context) (models.User, error) {
		return s.identity.GetUserByID(ctx, req.AdminUserID)
	})
	switch {
	case errors.Is(err, models.ErrUserNotFound):
		return nil, newError(KindAuthorization, "invalid admin user", err)
	case err != nil:
		return nil, newError(KindDependency, "could not verify admin user", err)
	case admin.Role != models.RoleAdmin:
		return nil, newError(KindAuthorization, "user is not an admin", nil)
	}

	businesses, err := fatal(ctx, rec, StepLoadBusiness, func(ctx context.Context) ([]models.Business, error) {
		return s.store.FindBusinesses(ctx, req.BusinessID)
	})
	if err != nil {
		return nil, newError(KindDependency, "could not load business", err)
	}
	if len(businesses) == 0 {
		return nil, newError(KindNotFound, "business not found", models.ErrBusinessNotFound)
	}
	if len(businesses) > 1 {
		// TODO: drop once businesses.id carries a unique constraint everywhere.
		slog.WarnContext(ctx, "business lookup is not unique, using first row",
			"business_id", req.BusinessID.String(), "rows", len(businesses))
	}
	biz := businesses[0]

	app, _ := bestEffort(ctx, rec, StepLoadApplication, func(ctx context.Context) (*models.Application, error) {
		return s.store.FindApplicationByBusiness(ctx, biz.ID)
	})

	if !verification.CanApprove(biz.VerificationStatus) {
		return nil, newError(KindStateConflict,
			fmt.Sprintf("business is %s and cannot be approved", biz.VerificationStatus), models.ErrStateConflict)
	}
	act, err := fatal(ctx, rec, StepActivate, func(ctx context.Context) (models.Activation, error) {
		return s.store.ApproveAndActivate(ctx, biz.ID, admin.ID, notes)
	})
	switch {
	case errors.Is(err, models.ErrStateConflict):
		return nil, newError(KindStateConflict, "business is no longer in an approvable state", err)
	case errors.Is(err, models.ErrBusinessNotFound):
		return nil, newError(KindNotFound, "business not found", err)
	case err != nil:
		return nil, newError(KindDependency, "failed to activate business", err)
	}

	// Committed. Nothing below may turn this into a failure.
	approvedAt := act.ActivatedAt
	if approvedAt.IsZero() {
		approvedAt = s.now()
	}
	out := &Outcome{
		BusinessID: biz.ID,
		Activation: act,
		ApprovedAt: approvedAt,
		ApprovedBy: admin.ID,
	}

	if app != nil {
		bestEffort(ctx, rec, StepUpdateApplication, func(ctx context.Context) (struct{}, error) {
			updated := *app
			updated.Status = models.ApplicationApproved
			updated.ApprovedAt = approvedAt
			updated.ApprovedBy = admin.ID
			updated.Notes = notes
			return struct{}{}, s.store.UpdateApplicationStatus(ctx, updated)
		})
	} else {
		rec.skip(StepUpdateApplication, "no application record")
	}

	owner, err := fatal(ctx, rec, StepResolveOwner, func(ctx context.Context) (models.Member, error) {
		return s.store.FindMemberByRole(ctx, biz.ID, models.MemberRoleOwner)
	})
	if err != nil {
		msg := "no owner found for business; onboarding link was not generated"
		if !errors.Is(err, models.ErrOwnerNotFound) {
			msg = "could not resolve business owner; onboarding link was not generated"
		}
		out.OwnerErr = newError(KindMissingOwner, msg, err)
		slog.WarnContext(ctx, "approved business has no resolvable owner", "business_id", biz.ID.String(), "err", err)
		rec.skip(StepIssueToken, "no owner")
	} else {
		s.issueToken(ctx, rec, out, biz, owner, app)
	}

	if app != nil {
		bestEffort(ctx, rec, StepApprovalRecord, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.store.CreateApprovalRecord(ctx, models.ApprovalRecord{
				ID:             uuid.New(),
				ApplicationID:  app.ID,
				BusinessID:     biz.ID,
				ApprovedBy:     admin.ID,
				ApprovedAt:     approvedAt,
				Token:          out.Token,
				TokenExpiresAt: tokenExpiry(out),
				Notes:          notes,
			})
		})
	} else {
		rec.skip(StepApprovalRecord, "no application record")
	}

	bestEffort(ctx, rec, StepSetupProgress, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.UpsertSetupProgress(ctx, models.SetupProgress{
			BusinessID:        biz.ID,
			CurrentStep:       models.Phase2EntryStep,
			Phase1Completed:   true,
			Phase1CompletedAt: approvedAt,
			UpdatedAt:         s.now(),
		})
	})

	if req.SendEmail {
		out.EmailStatus = s.sendApprovalEmail(ctx, rec, biz, owner, out)
	} else {
		rec.skip(StepSendEmail, "not requested")
		out.EmailStatus = EmailStatus{Warning: "email was not requested"}
	}

	out.Steps = rec.results
	return out, nil
}

func (s *Service) issueToken(ctx context.Context, rec *recorder, out *Outcome, biz models.Business, owner models.Member, app *models.Application) {
	appID := placeholderApplicationID(biz.ID)
	if app != nil {
		appID = app.ID
	}
	claims := s.codec.NewClaims(biz.ID.String(), owner.UserID.String(), appID.String())
	tok, res := bestEffort(ctx, rec, StepIssueToken, func(context.Context) (string, error) {
		return s.codec.Issue(claims)
	})
	if !res.OK() {
		return
	}
	out.Token = tok
	out.TokenClaims = claims
	out.URL = approvaltoken.BuildURL(s.baseURL, tok)
}

// placeholderApplicationID stands in for the application id on businesses
// that never had a legacy application. It is stable per business.
func placeholderApplicationID(businessID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("roam:business-application:"+businessID.String()))
}

func tokenExpiry(out *Outcome) time.Time {
	if out.Token == "" {
		return time.Time{}
	}
	return out.TokenClaims.ExpiresTime()
}

func (s *Service) sendApprovalEmail(ctx context.Context, rec *recorder, biz models.Business, owner models.Member, out *Outcome) EmailStatus {
	if out.URL == "" {
		rec.skip(StepSendEmail, "no onboarding link")
		return EmailStatus{Warning: "no onboarding link could be generated; approval email was not sent"}
	}
	if s.mailer == nil {
		rec.skip(StepSendEmail, "no mailer")
		return EmailStatus{Warning: "email provider not configured; approval email was not sent"}
	}

	var to string
	_, res := bestEffort(ctx, rec, StepSendEmail, func(ctx context.Context) (struct{}, error) {
		var name string
		to, name = s.resolveRecipient(ctx, biz, owner)
		if to == "" {
			return struct{}{}, errNoRecipient
		}
		msg, err := renderApprovalEmail(approvalEmail{
			To:           to,
			Name:         name,
			BusinessName: biz.Name,
			URL:          out.URL,
			ExpiresAt:    out.TokenClaims.ExpiresTime(),
		})
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.mailer.Send(ctx, msg)
	})

	switch {
	case res.OK():
		return EmailStatus{Sent: true, Recipient: to}
	case errors.Is(res.Err, errNoRecipient):
		return EmailStatus{Warning: errNoRecipient.Error() + "; approval email was not sent"}
	case errors.Is(res.Err, notify.ErrNotConfigured):
		return EmailStatus{Recipient: to, Warning: res.Err.Error() + "; approval email was not sent"}
	default:
		return EmailStatus{Recipient: to, Error: res.Error}
	}
}

// resolveRecipient picks the owner's on-file email, then the business contact
// email, then the identity provider's email. The display name follows the
// same order.
func (s *Service) resolveRecipient(ctx context.Context, biz models.Business, owner models.Member) (email, name string) {
	email = strings.TrimSpace(owner.Email)
	if email == "" {
		email = strings.TrimSpace(biz.ContactEmail)
	}
	name = strings.TrimSpace(owner.FullName())
	if name == "" {
		name = strings.TrimSpace(biz.Name)
	}
	if email != "" && name != "" {
		return email, name
	}

	u, err := s.identity.GetUserByID(ctx, owner.UserID)
	if err != nil {
		slog.WarnContext(ctx, "owner identity lookup failed", "user_id", owner.UserID.String(), "err", err)
		return email, name
	}
	if email == "" {
		email = strings.TrimSpace(u.Email)
	}
	if name == "" {
		name = strings.TrimSpace(u.Name)
	}
	return email, name
}
