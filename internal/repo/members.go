package repo

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Iridium40/roam-platform-sub004/internal/models"
)

// ---------------- Users & Memberships ----------------

func (p *pgRepo) GetUserByID(ctx context.Context, id uuid.UUID) (models.User, error) {
	slog.DebugContext(ctx, "GetUserByID", "user_id", id.String())
	var (
		uid   pgtype.UUID
		email string
		name  pgtype.Text
		role  string
	)
	err := p.db.QueryRow(ctx, `SELECT id, email, full_name, role FROM users WHERE id = $1`, fromUUID(id)).
		Scan(&uid, &email, &name, &role)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, models.ErrUserNotFound
	}
	if err != nil {
		slog.ErrorContext(ctx, "GetUserByID failed", "err", err)
		return models.User{}, err
	}
	return models.User{
		ID:    toUUID(uid),
		Email: email,
		Name:  fromText(name),
		Role:  models.PlatformRole(role),
	}, nil
}

const findMemberByRole = `
SELECT business_id, user_id, role, email, first_name, last_name
FROM business_members
WHERE business_id = $1 AND role = $2 AND is_active
ORDER BY created_at
LIMIT 1`

// FindMemberByRole returns the earliest active member holding role.
func (p *pgRepo) FindMemberByRole(ctx context.Context, businessID uuid.UUID, role models.MemberRole) (models.Member, error) {
	slog.DebugContext(ctx, "FindMemberByRole", "business_id", businessID.String(), "role", string(role))
	var (
		bid, uid           pgtype.UUID
		r                  string
		email, first, last pgtype.Text
	)
	err := p.db.QueryRow(ctx, findMemberByRole, fromUUID(businessID), string(role)).
		Scan(&bid, &uid, &r, &email, &first, &last)
	if errors.Is(err, pgx.ErrNoRows) {
		if role == models.MemberRoleOwner {
			return models.Member{}, models.ErrOwnerNotFound
		}
		return models.Member{}, models.ErrUserNotFound
	}
	if err != nil {
		slog.ErrorContext(ctx, "FindMemberByRole failed", "err", err)
		return models.Member{}, err
	}
	return models.Member{
		BusinessID: toUUID(bid),
		UserID:     toUUID(uid),
		Role:       models.MemberRole(r),
		Email:      fromText(email),
		FirstName:  fromText(first),
		LastName:   fromText(last),
	}, nil
}
