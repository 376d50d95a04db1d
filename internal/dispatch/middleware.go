package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ILLUVRSE/ledger/internal/auditchain"
	"github.com/ILLUVRSE/ledger/internal/identity"
	"github.com/ILLUVRSE/ledger/internal/logging"
)

var dispatchLog = logging.New("dispatch")

// mutatingMethods are the methods whose side effects the fail-closed
// preflight guards.
var mutatingMethods = map[string]bool{
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// failClosedExempt is the §4.I exemption set: admin bootstrap routes must
// keep working even when the audit sink isn't ready yet.
var failClosedExempt = map[string]bool{
	"POST /api/admin/login":  true,
	"POST /api/admin/invite": true,
	"POST /api/admin/rename": true,
	"POST /api/admin/revoke": true,
}

func isFailClosedRoute(method, routeTemplate string) bool {
	if !mutatingMethods[strings.ToUpper(method)] {
		return false
	}
	return !failClosedExempt[strings.ToUpper(method)+" "+routeTemplate]
}

// bearerToken extracts the raw token from an "Authorization: Bearer <token>"
// header, or "" if absent/malformed.
func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return ""
	}
	const prefix = "bearer "
	if len(authz) <= len(prefix) || !strings.EqualFold(authz[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(authz[len(prefix):])
}

// resolveOperator extracts a bearer credential and resolves it to an
// operator Actor: a session token takes precedence (identity.SessionSigner
// falls through to ErrInvalidSession on any parse/expiry/signature failure),
// and any presented token that isn't a valid session is re-checked as a raw
// master/demo/invite credential.
func resolveOperator(ctx context.Context, deps *Deps, r *http.Request) *identity.Actor {
	token := bearerToken(r)
	if token == "" {
		return nil
	}
	if deps.Sessions != nil {
		if actor, err := deps.Sessions.Verify(token); err == nil {
			return actor
		}
	}
	actor, err := deps.Registry.Authenticate(ctx, token)
	if err != nil {
		return nil
	}
	return actor
}

// recorder buffers a handler's response so the post-handler audit append can
// still override it with a 503 before anything reaches the client.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newRecorder() *recorder {
	return &recorder{header: make(http.Header), status: http.StatusOK}
}

func (rec *recorder) Header() http.Header { return rec.header }

func (rec *recorder) Write(b []byte) (int, error) { return rec.body.Write(b) }

func (rec *recorder) WriteHeader(status int) { rec.status = status }

func (rec *recorder) flush(w http.ResponseWriter) {
	dst := w.Header()
	for k, vs := range rec.header {
		dst[k] = vs
	}
	w.WriteHeader(rec.status)
	_, _ = w.Write(rec.body.Bytes())
}

func statusClass(status int) string {
	return strconv.Itoa(status/100) + "xx"
}

// AuditMiddleware implements §4.I in full: actor classification and
// path-templated event naming, the fail-closed preflight, redacted request
// body capture, and the post-handler API_* audit append (with a 503
// override on fail-closed routes whose append itself failed).
func AuditMiddleware(deps *Deps, routeTemplate string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			operator := resolveOperator(ctx, deps, r)
			ctx = WithOperator(ctx, operator)
			r = r.WithContext(ctx)

			failClosed := isFailClosedRoute(r.Method, routeTemplate) && deps.Chain.Mode().String() == "required"
			if failClosed && !deps.Chain.OperationallyReady() {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{
					"error": "audit sink not ready",
				})
				return
			}

			requestBody := captureRequestBody(r)

			start := time.Now()
			rec := newRecorder()
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			eventName := AuditEventName(r.Method, r.URL.Path)
			actorKind := ClassifyActor(r.Method, r.URL.Path)
			actorID := "-"
			if operator != nil {
				actorID = operator.AdminID
			} else if actorKind == ActorWallet {
				if wallet := r.URL.Query().Get("walletAddress"); wallet != "" {
					actorID = MaskWallet(wallet)
				}
			}

			data := map[string]interface{}{
				"route":            routeTemplate,
				"method":           r.Method,
				"status":           rec.status,
				"statusClass":      statusClass(rec.status),
				"durationMs":       duration.Milliseconds(),
				"hasAuthorization": r.Header.Get("Authorization") != "",
				"origin":           r.Header.Get("Origin"),
				"requestBody":      requestBody,
			}
			if q := r.URL.RawQuery; q != "" {
				data["query"] = q
			}
			if rec.status >= 400 {
				data["errorMessage"] = strings.TrimSpace(rec.body.String())
			}

			eventID := chiURLParamOrDash(r, "eventId")
			_, appendErr := deps.Chain.Append(ctx, eventName, auditchain.Actor{Type: actorKind, ID: actorID}, eventID, data)
			if appendErr != nil {
				dispatchLog.Printf("audit append failed for %s %s: %v", r.Method, r.URL.Path, appendErr)
				if failClosed {
					writeJSON(w, http.StatusServiceUnavailable, map[string]string{
						"error":  "audit log persistence failed",
						"detail": appendErr.Error(),
					})
					return
				}
			}

			rec.flush(w)
		})
	}
}

// captureRequestBody implements the §4.I request-body introspection rule:
// JSON bodies only, on mutating methods, cloned so the real handler still
// sees the full stream, then redacted and bounded.
func captureRequestBody(r *http.Request) interface{} {
	if !mutatingMethods[strings.ToUpper(r.Method)] {
		return nil
	}
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		return nil
	}
	if r.Body == nil {
		return nil
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r.Body); err != nil {
		return map[string]string{"parseError": "invalid_json"}
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(buf.Bytes()))

	if buf.Len() == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(buf.Bytes(), &v); err != nil {
		return map[string]string{"parseError": "invalid_json"}
	}
	return RedactAndBound(v)
}

func chiURLParamOrDash(r *http.Request, name string) string {
	if v := chi.URLParam(r, name); v != "" {
		return v
	}
	return "-"
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
