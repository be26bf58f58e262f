package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Iridium40/roam-platform-sub004/internal/models"
)

// ---------------- Businesses ----------------

const findBusinesses = `
SELECT id, business_name, contact_email, phone, verification_status,
       activated_at, activated_by, approval_notes
FROM businesses
WHERE id = $1`

// FindBusinesses returns every row matching id. The caller decides what to do
// when the lookup is not unique.
func (p *pgRepo) FindBusinesses(ctx context.Context, id uuid.UUID) ([]models.Business, error) {
	slog.DebugContext(ctx, "FindBusinesses", "business_id", id.String())
	rows, err := p.db.Query(ctx, findBusinesses, fromUUID(id))
	if err != nil {
		slog.ErrorContext(ctx, "FindBusinesses failed", "err", err)
		return nil, err
	}
	defer rows.Close()

	var out []models.Business
	for rows.Next() {
		var (
			bid, activatedBy    pgtype.UUID
			name, status        string
			email, phone, notes pgtype.Text
			activatedAt         pgtype.Timestamptz
		)
		if err := rows.Scan(&bid, &name, &email, &phone, &status, &activatedAt, &activatedBy, &notes); err != nil {
			slog.ErrorContext(ctx, "FindBusinesses scan failed", "err", err)
			return nil, err
		}
		out = append(out, models.Business{
			ID:                 toUUID(bid),
			Name:               name,
			ContactEmail:       fromText(email),
			Phone:              fromText(phone),
			VerificationStatus: models.VerificationStatus(status),
			ActivatedAt:        fromTimestamptz(activatedAt),
			ActivatedBy:        toUUID(activatedBy),
			Notes:              fromText(notes),
		})
	}
	if err := rows.Err(); err != nil {
		slog.ErrorContext(ctx, "FindBusinesses rows failed", "err", err)
		return nil, err
	}
	return out, nil
}

type activationRow struct {
	BusinessID     uuid.UUID                 `json:"business_id"`
	PreviousStatus models.VerificationStatus `json:"previous_status"`
	Status         models.VerificationStatus `json:"status"`
	ActivatedAt    time.Time                 `json:"activated_at"`
	ActivatedBy    uuid.UUID                 `json:"activated_by"`
}

// ApproveAndActivate calls the approve_and_activate procedure, which locks the
// business row, re-checks that it is pending or suspended, and writes the
// approval fields in one transaction.
func (p *pgRepo) ApproveAndActivate(ctx context.Context, businessID, adminID uuid.UUID, notes string) (models.Activation, error) {
	slog.DebugContext(ctx, "ApproveAndActivate", "business_id", businessID.String(), "admin_id", adminID.String())
	var raw []byte
	err := p.db.QueryRow(ctx, `SELECT approve_and_activate($1, $2, $3)`,
		fromUUID(businessID), fromUUID(adminID), toText(notes)).Scan(&raw)
	if err != nil {
		slog.ErrorContext(ctx, "ApproveAndActivate failed", "err", err, "sqlstate", pgCode(err))
		switch pgCode(err) {
		case sqlstateCheckViolation:
			return models.Activation{}, fmt.Errorf("%w: %v", models.ErrStateConflict, err)
		case sqlstateNoDataFound:
			return models.Activation{}, fmt.Errorf("%w: %v", models.ErrBusinessNotFound, err)
		}
		return models.Activation{}, fmt.Errorf("approve_and_activate: %w", err)
	}

	var row activationRow
	if err := json.Unmarshal(raw, &row); err != nil {
		// The transaction has committed at this point; keep the raw result.
		slog.WarnContext(ctx, "ApproveAndActivate result not decodable", "err", err)
	}
	act := models.Activation{
		Committed:      true,
		BusinessID:     row.BusinessID,
		PreviousStatus: row.PreviousStatus,
		Status:         row.Status,
		ActivatedAt:    row.ActivatedAt,
		ActivatedBy:    row.ActivatedBy,
		Result:         json.RawMessage(raw),
	}
	if act.BusinessID == uuid.Nil {
		act.BusinessID = businessID
	}
	if act.ActivatedBy == uuid.Nil {
		act.ActivatedBy = adminID
	}
	if act.Status == "" {
		act.Status = models.StatusApproved
	}
	return act, nil
}
