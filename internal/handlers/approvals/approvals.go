// internal/handlers/approvals/approvals.go
package approvals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Iridium40/roam-platform-sub004/internal/approval"
	"github.com/Iridium40/roam-platform-sub004/internal/approvaltoken"
	httpserver "github.com/Iridium40/roam-platform-sub004/internal/http"
	"github.com/Iridium40/roam-platform-sub004/internal/middleware"
	"github.com/Iridium40/roam-platform-sub004/internal/models"
)

const maxBody = 1 << 20

type Approver interface {
	Approve(ctx context.Context, req approval.Request) (*approval.Outcome, error)
}

type TokenVerifier interface {
	Verify(token string) (approvaltoken.Claims, error)
}

type Handler struct {
	approver Approver
	verifier TokenVerifier
	validate *validator.Validate
}

func New(approver Approver, verifier TokenVerifier) *Handler {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{approver: approver, verifier: verifier, validate: v}
}

type ApproveRequest struct {
	BusinessID    string `json:"businessId" validate:"required,uuid"`
	AdminUserID   string `json:"adminUserId" validate:"required,uuid"`
	ApprovalNotes string `json:"approvalNotes" validate:"max=2000"`
	SendEmail     *bool  `json:"sendEmail"`
}

type ownerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ApproveResponse struct {
	Success        bool                  `json:"success"`
	Message        string                `json:"message"`
	ApprovalToken  string                `json:"approvalToken,omitempty"`
	ApprovalURL    string                `json:"approvalUrl,omitempty"`
	TokenExpiresAt *time.Time            `json:"tokenExpiresAt,omitempty"`
	Activation     models.Activation     `json:"activation"`
	EmailStatus    approval.EmailStatus  `json:"emailStatus"`
	ApprovedAt     time.Time             `json:"approvedAt"`
	ApprovedBy     string                `json:"approvedBy"`
	OwnerError     *ownerError           `json:"ownerError,omitempty"`
	Steps          []approval.StepResult `json:"steps"`
}

// ApproveBusiness handles POST /api/admin/approve-business.
func (h *Handler) ApproveBusiness(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slog.With("request_id", middleware.RequestIDFromContext(ctx))

	var body ApproveRequest
	if !h.decode(w, r, &body) {
		return
	}

	businessID, err1 := uuid.Parse(body.BusinessID)
	adminID, err2 := uuid.Parse(body.AdminUserID)
	if err := errors.Join(err1, err2); err != nil {
		httpserver.JSON(w, http.StatusBadRequest, httpserver.ErrorBody{Error: "invalid request", Details: err.Error()})
		return
	}
	req := approval.Request{
		BusinessID:  businessID,
		AdminUserID: adminID,
		Notes:       body.ApprovalNotes,
		SendEmail:   body.SendEmail == nil || *body.SendEmail,
	}

	out, err := h.approver.Approve(ctx, req)
	if err != nil {
		status := statusFor(approval.KindOf(err))
		if status >= http.StatusInternalServerError {
			log.ErrorContext(ctx, "approve business failed", "business_id", body.BusinessID, "err", err)
		}
		httpserver.JSON(w, status, httpserver.ErrorBody{Error: publicMessage(err), Details: details(err)})
		return
	}

	log.InfoContext(ctx, "approve business",
		"business_id", out.BusinessID.String(),
		"degraded", out.Degraded())
	httpserver.JSON(w, http.StatusOK, newApproveResponse(out))
}

func newApproveResponse(out *approval.Outcome) ApproveResponse {
	resp := ApproveResponse{
		Success:       true,
		Message:       "Business approved successfully",
		ApprovalToken: out.Token,
		ApprovalURL:   out.URL,
		Activation:    out.Activation,
		EmailStatus:   out.EmailStatus,
		ApprovedAt:    out.ApprovedAt.UTC(),
		ApprovedBy:    out.ApprovedBy.String(),
		Steps:         out.Steps,
	}
	if out.Token != "" {
		exp := out.TokenClaims.ExpiresTime()
		resp.TokenExpiresAt = &exp
	}
	if out.OwnerErr != nil {
		resp.Message = "Business approved, but no owner was found to receive the onboarding link"
		resp.OwnerError = &ownerError{Code: string(approval.KindMissingOwner), Message: out.OwnerErr.Msg}
	}
	if resp.Steps == nil {
		resp.Steps = []approval.StepResult{}
	}
	return resp
}

func statusFor(k approval.Kind) int {
	switch k {
	case approval.KindValidation, approval.KindStateConflict:
		return http.StatusBadRequest
	case approval.KindAuthorization:
		return http.StatusForbidden
	case approval.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func publicMessage(err error) string {
	var e *approval.Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}

// details carries the underlying cause for client errors only.
func details(err error) string {
	var e *approval.Error
	if !errors.As(err, &e) || e.Err == nil {
		return ""
	}
	switch e.Kind {
	case approval.KindStateConflict, approval.KindNotFound:
		return e.Err.Error()
	}
	return ""
}

type VerifyTokenRequest struct {
	Token string `json:"token" validate:"required"`
}

type VerifyTokenResponse struct {
	Valid     bool                 `json:"valid"`
	Claims    approvaltoken.Claims `json:"claims"`
	ExpiresAt time.Time            `json:"expiresAt"`
}

// VerifyToken handles POST /api/onboarding/verify-approval-token. It never
// mutates state.
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body VerifyTokenRequest
	if !h.decode(w, r, &body) {
		return
	}

	claims, err := h.verifier.Verify(body.Token)
	if err != nil {
		code := tokenErrorCode(err)
		slog.InfoContext(ctx, "approval token rejected",
			"request_id", middleware.RequestIDFromContext(ctx), "code", code)
		httpserver.JSON(w, http.StatusUnauthorized, httpserver.ErrorBody{Error: tokenErrorMessage(err), Code: code})
		return
	}

	httpserver.JSON(w, http.StatusOK, VerifyTokenResponse{Valid: true, Claims: claims, ExpiresAt: claims.ExpiresTime()})
}

func tokenErrorCode(err error) string {
	switch {
	case errors.Is(err, approvaltoken.ErrExpiredToken):
		return "expired_token"
	case errors.Is(err, approvaltoken.ErrWrongAudienceOrIssuer):
		return "wrong_audience_or_issuer"
	case errors.Is(err, approvaltoken.ErrWrongPhase):
		return "wrong_phase"
	default:
		return "invalid_token"
	}
}

func tokenErrorMessage(err error) string {
	for _, target := range []error{
		approvaltoken.ErrExpiredToken,
		approvaltoken.ErrWrongAudienceOrIssuer,
		approvaltoken.ErrWrongPhase,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return approvaltoken.ErrInvalidToken.Error()
}

// decode reads a single JSON object into dst and validates it. It writes the
// 400 response itself and reports whether the caller should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		httpserver.JSON(w, http.StatusBadRequest, httpserver.ErrorBody{Error: "invalid JSON", Details: err.Error()})
		return false
	}
	if dec.More() {
		httpserver.JSON(w, http.StatusBadRequest, httpserver.ErrorBody{Error: "invalid JSON (extra content)"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		httpserver.JSON(w, http.StatusBadRequest, httpserver.ErrorBody{Error: "invalid request", Details: describe(err)})
		return false
	}
	return true
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "uuid":
			msgs = append(msgs, fe.Field()+" must be a UUID")
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
