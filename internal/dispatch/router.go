package dispatch

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// route wraps handler with AuditMiddleware bound to its own static template,
// then mounts it on r — the §4.I audit wrapper is applied per-route instead
// of as a blanket middleware so every entry knows its own route string
// without re-deriving it from the chi route context.
func route(r chi.Router, deps *Deps, method, pattern string, handler http.HandlerFunc) {
	wrapped := AuditMiddleware(deps, pattern)(handler)
	r.Method(method, pattern, wrapped)
}

// NewRouter builds the full chi router for every endpoint in the HTTP
// surface: school/event/claim routes, user registration and claiming, PoP
// proof issuance, readiness/status routes, receipt verification, and the
// admin/master operator surface.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	route(r, deps, http.MethodGet, "/v1/school/events", handleEventsList(deps))
	route(r, deps, http.MethodPost, "/v1/school/events", handleEventCreate(deps))
	route(r, deps, http.MethodGet, "/v1/school/events/{eventId}", handleEventGet(deps))
	route(r, deps, http.MethodGet, "/v1/school/events/{eventId}/claimants", handleEventClaimants(deps))
	route(r, deps, http.MethodPost, "/v1/school/claims", handleSchoolClaims(deps))
	route(r, deps, http.MethodPost, "/v1/school/pop-proof", handlePopProof(deps))
	route(r, deps, http.MethodGet, "/v1/school/pop-status", handlePopStatus(deps))
	route(r, deps, http.MethodGet, "/v1/school/audit-status", handleAuditStatus(deps))
	route(r, deps, http.MethodGet, "/v1/school/runtime-status", handleRuntimeStatus(deps))

	route(r, deps, http.MethodGet, "/metadata/{mintJSON}", handleMintMetadata(deps))

	route(r, deps, http.MethodPost, "/api/users/register", handleUserRegister(deps))
	route(r, deps, http.MethodPost, "/api/auth/verify", handleAuthVerify(deps))
	route(r, deps, http.MethodPost, "/api/events/{eventId}/claim", handleUserClaim(deps))

	route(r, deps, http.MethodPost, "/api/audit/receipts/verify", handleReceiptVerify(deps))
	route(r, deps, http.MethodPost, "/api/audit/receipts/verify-code", handleReceiptVerifyCode(deps))

	route(r, deps, http.MethodPost, "/api/admin/login", handleAdminLogin(deps))
	route(r, deps, http.MethodPost, "/api/admin/invite", handleAdminInvite(deps))
	route(r, deps, http.MethodPost, "/api/admin/rename", handleAdminRename(deps))
	route(r, deps, http.MethodPost, "/api/admin/revoke", handleAdminRevoke(deps))
	route(r, deps, http.MethodGet, "/api/admin/invites", handleAdminInvites(deps))
	route(r, deps, http.MethodGet, "/api/admin/transfers", handleAdminTransfers(deps))

	route(r, deps, http.MethodGet, "/api/master/audit-logs", handleMasterAuditLogs(deps))
	route(r, deps, http.MethodGet, "/api/master/audit-integrity", handleMasterAuditIntegrity(deps))
	route(r, deps, http.MethodGet, "/api/master/transfers", handleMasterTransfers(deps))
	route(r, deps, http.MethodGet, "/api/master/admin-disclosures", handleMasterAdminDisclosures(deps))
	route(r, deps, http.MethodGet, "/api/master/search", handleMasterSearch(deps))

	return r
}
