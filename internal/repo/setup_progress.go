package repo

import (
	"context"
	"log/slog"
	"time"

	"github.com/Iridium40/roam-platform-sub004/internal/models"
)

const upsertSetupProgress = `
INSERT INTO business_setup_progress (
    business_id, current_step, phase_1_completed, phase_1_completed_at, updated_at
) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (business_id) DO UPDATE SET
    current_step         = EXCLUDED.current_step,
    phase_1_completed    = EXCLUDED.phase_1_completed,
    phase_1_completed_at = EXCLUDED.phase_1_completed_at,
    updated_at           = EXCLUDED.updated_at`

func (p *pgRepo) UpsertSetupProgress(ctx context.Context, sp models.SetupProgress) error {
	slog.DebugContext(ctx, "UpsertSetupProgress", "business_id", sp.BusinessID.String(), "step", sp.CurrentStep)
	if sp.UpdatedAt.IsZero() {
		sp.UpdatedAt = time.Now()
	}
	_, err := p.db.Exec(ctx, upsertSetupProgress,
		fromUUID(sp.BusinessID), sp.CurrentStep, sp.Phase1Completed,
		toTimestamptz(sp.Phase1CompletedAt), toTimestamptz(sp.UpdatedAt))
	if err != nil {
		slog.ErrorContext(ctx, "UpsertSetupProgress failed", "err", err)
		return err
	}
	return nil
}
