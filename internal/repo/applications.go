package repo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Iridium40/roam-platform-sub004/internal/models"
)

// ---------------- Applications & Approvals ----------------

const findApplicationByBusiness = `
SELECT id, business_id, application_status, approved_at, approved_by, approval_notes
FROM business_applications
WHERE business_id = $1
ORDER BY created_at DESC
LIMIT 1`

// FindApplicationByBusiness returns (nil, nil) when the business has no
// legacy application.
func (p *pgRepo) FindApplicationByBusiness(ctx context.Context, businessID uuid.UUID) (*models.Application, error) {
	slog.DebugContext(ctx, "FindApplicationByBusiness", "business_id", businessID.String())
	var (
		id, bid, approvedBy pgtype.UUID
		status              string
		approvedAt          pgtype.Timestamptz
		notes               pgtype.Text
	)
	err := p.db.QueryRow(ctx, findApplicationByBusiness, fromUUID(businessID)).
		Scan(&id, &bid, &status, &approvedAt, &approvedBy, &notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.ErrorContext(ctx, "FindApplicationByBusiness failed", "err", err)
		return nil, err
	}
	return &models.Application{
		ID:         toUUID(id),
		BusinessID: toUUID(bid),
		Status:     models.ApplicationStatus(status),
		ApprovedAt: fromTimestamptz(approvedAt),
		ApprovedBy: toUUID(approvedBy),
		Notes:      fromText(notes),
	}, nil
}

func (p *pgRepo) UpdateApplicationStatus(ctx context.Context, app models.Application) error {
	slog.DebugContext(ctx, "UpdateApplicationStatus", "application_id", app.ID.String(), "status", string(app.Status))
	tag, err := p.db.Exec(ctx, `
UPDATE business_applications
SET application_status = $2, approved_at = $3, approved_by = $4, approval_notes = $5, updated_at = now()
WHERE id = $1`,
		fromUUID(app.ID), string(app.Status), toTimestamptz(app.ApprovedAt), fromUUID(app.ApprovedBy), toText(app.Notes))
	if err != nil {
		slog.ErrorContext(ctx, "UpdateApplicationStatus failed", "err", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("application %s: no row updated", app.ID)
	}
	return nil
}

func (p *pgRepo) CreateApprovalRecord(ctx context.Context, rec models.ApprovalRecord) error {
	slog.DebugContext(ctx, "CreateApprovalRecord", "application_id", rec.ApplicationID.String())
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := p.db.Exec(ctx, `
INSERT INTO application_approvals (
    id, application_id, business_id, approved_by, approved_at,
    approval_token, token_expires_at, approval_notes
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		fromUUID(rec.ID), fromUUID(rec.ApplicationID), fromUUID(rec.BusinessID), fromUUID(rec.ApprovedBy),
		toTimestamptz(rec.ApprovedAt), toText(rec.Token), toTimestamptz(rec.TokenExpiresAt), toText(rec.Notes))
	if err != nil {
		slog.ErrorContext(ctx, "CreateApprovalRecord failed", "err", err)
		return err
	}
	return nil
}
