// Package dispatch implements the request dispatcher (§4.I): chi-based
// routing following kernel/internal/handlers/handlers.go's
// handler-factory-closure style and kernel/internal/auth/middleware.go's
// context-value auth-info pattern, generalized from mTLS/OIDC peer
// extraction to this system's actor classification, audit-event naming, and
// fail-closed preflight.
package dispatch

import (
	"regexp"
	"strings"
)

// actor kinds.
const (
	ActorOperator = "operator"
	ActorAuditor  = "auditor"
	ActorWallet   = "wallet"
	ActorUser     = "user"
	ActorSchool   = "school"
	ActorSystem   = "system"
)

var (
	eventIDPath          = regexp.MustCompile(`^/v1/school/events/[^/]+$`)
	eventClaimantsPath   = regexp.MustCompile(`^/v1/school/events/[^/]+/claimants$`)
	apiEventClaimPath    = regexp.MustCompile(`^/api/events/[^/]+/claim$`)
	nonAlphanumericRun   = regexp.MustCompile(`[^A-Za-z0-9]+`)
)

// AuditEventName implements the §4.I path-templating rule: known
// parameterized routes collapse their id segment to a literal token before
// the method-prefixed, upper-snake-cased name is built; anything else uses
// the literal path.
func AuditEventName(method, path string) string {
	template := path
	switch {
	case eventClaimantsPath.MatchString(path):
		template = "/v1/school/events/:eventId/claimants"
	case eventIDPath.MatchString(path):
		template = "/v1/school/events/:eventId"
	case apiEventClaimPath.MatchString(path):
		template = "/api/events/:eventId/claim"
	}

	body := nonAlphanumericRun.ReplaceAllString(template, "_")
	body = strings.Trim(body, "_")
	return "API_" + strings.ToUpper(method) + "_" + strings.ToUpper(body)
}

// ClassifyActor implements the §4.I actor classification table.
func ClassifyActor(method, path string) string {
	switch {
	case strings.HasPrefix(path, "/api/admin/"), strings.HasPrefix(path, "/api/master/"):
		return ActorOperator
	case isAdminProtectedSchoolRoute(path):
		return ActorOperator
	case strings.HasPrefix(path, "/api/audit/receipts/verify"):
		return ActorAuditor
	case path == "/v1/school/claims":
		return ActorWallet
	case isUserRoute(path):
		return ActorUser
	case strings.HasPrefix(path, "/v1/school/"):
		return ActorSchool
	default:
		return ActorSystem
	}
}

func isAdminProtectedSchoolRoute(path string) bool {
	return eventClaimantsPath.MatchString(path)
}

func isUserRoute(path string) bool {
	switch {
	case strings.HasPrefix(path, "/api/users/register"):
		return true
	case strings.HasPrefix(path, "/api/auth/verify"):
		return true
	case apiEventClaimPath.MatchString(path):
		return true
	}
	return false
}

// MaskWallet masks a wallet address as first4...last4 for strings longer
// than 8 characters; shorter strings pass through unmasked (nothing useful
// to redact).
func MaskWallet(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:4] + "..." + address[len(address)-4:]
}
