// internal/handlers/router.go
package handlers

import (
	"github.com/go-chi/chi/v5"

	"github.com/Iridium40/roam-platform-sub004/internal/handlers/approvals"
	httpserver "github.com/Iridium40/roam-platform-sub004/internal/http"
)

const (
	ApproveBusinessPath = "/api/admin/approve-business"
	VerifyTokenPath     = "/api/onboarding/verify-approval-token"
	HealthPath          = "/healthz"
)

func RegisterRoutes(mux *chi.Mux, h *approvals.Handler, db Pinger) {
	mux.NotFound(httpserver.NotFound)
	mux.MethodNotAllowed(httpserver.MethodNotAllowed)

	mux.Get(HealthPath, Health(db))
	mux.Post(ApproveBusinessPath, h.ApproveBusiness)
	mux.Post(VerifyTokenPath, h.VerifyToken)
}
