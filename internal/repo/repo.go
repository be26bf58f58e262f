// internal/repo/repo.go
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Iridium40/roam-platform-sub004/internal/models"
)

// Repo defines the methods the rest of the app uses.
type Repo interface {
	// Identity
	GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error)

	// Businesses
	FindBusinesses(ctx context.Context, id uuid.UUID) ([]models.Business, error)
	ApproveAndActivate(ctx context.Context, businessID, adminID uuid.UUID, notes string) (models.Activation, error)
	FindMemberByRole(ctx context.Context, businessID uuid.UUID, role models.MemberRole) (models.Member, error)

	// Legacy applications and approval audit
	FindApplicationByBusiness(ctx context.Context, businessID uuid.UUID) (*models.Application, error)
	UpdateApplicationStatus(ctx context.Context, app models.Application) error
	CreateApprovalRecord(ctx context.Context, rec models.ApprovalRecord) error

	// Onboarding
	UpsertSetupProgress(ctx context.Context, p models.SetupProgress) error
}

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgRepo runs plain SQL against Postgres.
type pgRepo struct{ db DBTX }

func New(db DBTX) Repo { return &pgRepo{db: db} }

// SQLSTATEs raised by approve_and_activate.
const (
	sqlstateCheckViolation = "23514"
	sqlstateNoDataFound    = "P0002"
)

// ---------------- Helpers ----------------

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func fromUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

func toUUID(u pgtype.UUID) uuid.UUID {
	if !u.Valid {
		return uuid.Nil
	}
	return uuid.UUID(u.Bytes)
}

// Convert string → pgtype.Text; empty strings are stored as NULL.
func toText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

// Convert pgtype.Text → string
func fromText(t pgtype.Text) string {
	return t.String
}

func toTimestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func fromTimestamptz(t pgtype.Timestamptz) time.Time {
	if !t.Valid {
		return time.Time{}
	}
	return t.Time
}
