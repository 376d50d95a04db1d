package dispatch

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mr-tron/base58"

	"github.com/ILLUVRSE/ledger/internal/auditchain"
	"github.com/ILLUVRSE/ledger/internal/claims"
	"github.com/ILLUVRSE/ledger/internal/disclosure"
	"github.com/ILLUVRSE/ledger/internal/identity"
	"github.com/ILLUVRSE/ledger/internal/pop"
	"github.com/ILLUVRSE/ledger/internal/receipts"
)

var bodyValidator = validator.New()

// decodeJSON decodes the request body into v, or writes a 400 and returns
// false if the body isn't valid JSON.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_json"})
		return false
	}
	return true
}

// decodeAndValidate decodes the request body into v and runs its
// `validate` struct tags, writing a 400 on either failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if !decodeJSON(w, r, v) {
		return false
	}
	if err := bodyValidator.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "validation: " + err.Error()})
		return false
	}
	return true
}

func requireOperator(w http.ResponseWriter, r *http.Request) (identity.Actor, bool) {
	actor := OperatorFromContext(r.Context())
	if actor == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return identity.Actor{}, false
	}
	return *actor, true
}

func requireMaster(w http.ResponseWriter, r *http.Request) (identity.Actor, bool) {
	actor, ok := requireOperator(w, r)
	if !ok {
		return actor, false
	}
	if actor.Source != identity.SourceMaster {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "master only"})
		return actor, false
	}
	return actor, true
}

// --- Events -----------------------------------------------------------

func handleEventsList(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := deps.Events.GetEvents(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		if r.URL.Query().Get("scope") == "mine" {
			actor, ok := requireOperator(w, r)
			if !ok {
				return
			}
			ids := make([]string, 0, len(events))
			byID := make(map[string]*claims.Event, len(events))
			for _, e := range events {
				ids = append(ids, e.ID)
				byID[e.ID] = e
			}
			mine, err := deps.Registry.FilterMine(r.Context(), actor, ids)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			filtered := make([]*claims.Event, 0, len(mine))
			for _, id := range mine {
				filtered = append(filtered, byID[id])
			}
			writeJSON(w, http.StatusOK, filtered)
			return
		}

		writeJSON(w, http.StatusOK, events)
	}
}

func handleEventCreate(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireOperator(w, r)
		if !ok {
			return
		}
		var ev claims.Event
		if !decodeAndValidate(w, r, &ev) {
			return
		}
		if err := deps.Events.CreateEvent(r.Context(), &ev); err != nil {
			if errors.Is(err, claims.ErrDuplicateOnChainTriple) {
				writeError(w, http.StatusConflict, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if err := deps.Registry.RecordEventOwner(r.Context(), ev.ID, actor); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, ev)
	}
}

func handleEventGet(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ev, err := deps.Events.GetEvent(r.Context(), chi.URLParam(r, "eventId"))
		if errors.Is(err, claims.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, ev)
	}
}

func handleEventClaimants(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireOperator(w, r)
		if !ok {
			return
		}
		eventID := chi.URLParam(r, "eventId")
		if _, err := deps.Events.GetEvent(r.Context(), eventID); errors.Is(err, claims.ErrEventNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		owner, err := deps.Registry.GetEventOwner(r.Context(), eventID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !identity.CanAccessEvent(owner, actor) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "not event owner"})
			return
		}
		claimants, err := deps.Events.GetClaimants(r.Context(), eventID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, claimants)
	}
}

// --- Claims -------------------------------------------------------------

type claimResponse struct {
	EventID          string                         `json:"eventId"`
	Status           string                         `json:"status"`
	ConfirmationCode string                         `json:"confirmationCode"`
	TicketReceipt    *receipts.ParticipationReceipt `json:"ticketReceipt,omitempty"`
}

func transferPayload(ev *claims.Event, recipient string) map[string]interface{} {
	return map[string]interface{}{
		"solanaAuthority":   ev.SolanaAuthority,
		"solanaMint":        ev.SolanaMint,
		"ticketTokenAmount": ev.TicketTokenAmount,
		"txSignature":       "",
		"receiptPubkey":     "",
		"recipient":         recipient,
	}
}

// submitClaimAndReceipt runs the shared claim→code→audit→receipt sequence
// for both the wallet-facing and user-facing claim endpoints, differing
// only in which subject identifier and audit event name are used.
func submitClaimAndReceipt(w http.ResponseWriter, r *http.Request, deps *Deps, eventID, walletAddress, joinToken, auditEvent string, groupField string) {
	ev, err := deps.Events.GetEvent(r.Context(), eventID)
	if errors.Is(err, claims.ErrEventNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	subject := walletAddress
	if subject == "" {
		subject = joinToken
	}
	if subject == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "wallet_required"})
		return
	}

	code, err := deps.Codes.Reserve(r.Context(), eventID, subject)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	result, err := deps.Events.SubmitClaim(r.Context(), eventID, walletAddress, joinToken, code, time.Now())
	if errors.Is(err, claims.ErrNotEligible) || errors.Is(err, claims.ErrWalletRequired) {
		_ = deps.Codes.Release(r.Context(), eventID, subject, code)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		_ = deps.Codes.Release(r.Context(), eventID, subject, code)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	if result.AlreadyJoined {
		_ = deps.Codes.Release(r.Context(), eventID, subject, code)
		existing, _ := deps.Receipts.GetBySubject(r.Context(), eventID, subject)
		writeJSON(w, http.StatusOK, claimResponse{
			EventID:          eventID,
			Status:           "already",
			ConfirmationCode: result.ConfirmationCode,
			TicketReceipt:    existing,
		})
		return
	}

	data := map[string]interface{}{
		groupField:         subject,
		"confirmationCode": code,
		"transfer":         transferPayload(ev, subject),
	}
	entry, err := deps.Chain.Append(r.Context(), auditEvent, auditchain.Actor{Type: ClassifyActor(r.Method, r.URL.Path), ID: subject}, eventID, data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	receipt, err := receipts.BuildReceipt(entry, eventID, subject, code, "/api/audit/receipts/verify")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := deps.Receipts.Persist(r.Context(), eventID, subject, receipt); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, claimResponse{
		EventID:          eventID,
		Status:           "created",
		ConfirmationCode: code,
		TicketReceipt:    receipt,
	})
}

func handleSchoolClaims(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			EventID       string `json:"eventId" validate:"required"`
			WalletAddress string `json:"walletAddress"`
			JoinToken     string `json:"joinToken"`
		}
		if !decodeAndValidate(w, r, &body) {
			return
		}
		submitClaimAndReceipt(w, r, deps, body.EventID, body.WalletAddress, body.JoinToken, "WALLET_CLAIM", "walletAddress")
	}
}

func handleUserClaim(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID string `json:"userId" validate:"required"`
			Pin    string `json:"pin" validate:"required"`
		}
		if !decodeAndValidate(w, r, &body) {
			return
		}
		if _, err := deps.Users.Verify(r.Context(), body.UserID, body.Pin); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		eventID := chi.URLParam(r, "eventId")
		submitClaimAndReceipt(w, r, deps, eventID, "", body.UserID, "USER_CLAIM", "userId")
	}
}

// --- PoP ------------------------------------------------------------------

func handlePopProof(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			EventID     string `json:"eventId"`
			Grant       string `json:"grant"`
			Claimer     string `json:"claimer"`
			PeriodIndex uint64 `json:"periodIndex"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		proof, err := deps.Pop.IssueClaimProof(r.Context(), body.EventID, body.Grant, body.Claimer, body.PeriodIndex)
		switch {
		case errors.Is(err, claims.ErrEventNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, pop.ErrEventNotPublished):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusOK, proof)
		}
	}
}

// --- Status -----------------------------------------------------------

func handlePopStatus(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{
			"enforced":  deps.Config.EnforceOnchainPop,
			"configured": deps.Signer.Configured(),
		}
		if pub, err := deps.Signer.PublicKeyBase58(); err == nil {
			status["pubkey"] = pub
		} else {
			status["error"] = err.Error()
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func handleAuditStatus(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"mode":               deps.Chain.Mode().String(),
			"primarySinkConfigured": deps.Chain.PrimarySinkConfigured(),
			"operationallyReady": deps.Chain.OperationallyReady(),
		})
	}
}

func handleRuntimeStatus(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminConfigured := deps.Config.MasterAuthEnabled()
		popEnforced := deps.Config.EnforceOnchainPop
		popConfigured := deps.Signer.Configured()
		popPubkey, popErr := deps.Signer.PublicKeyBase58()

		auditMode := deps.Chain.Mode().String()
		auditReady := deps.Chain.OperationallyReady()
		auditPrimary := deps.Chain.PrimarySinkConfigured()

		var blocking, warnings []string
		if !adminConfigured {
			blocking = append(blocking, "admin password not configured")
		}
		if popEnforced && (!popConfigured || popErr != nil) {
			blocking = append(blocking, "pop signer not ready")
		}
		if auditMode == "required" && !auditPrimary {
			blocking = append(blocking, "audit primary sink not configured")
		}
		if deps.Config.CORSOriginIsDefault() {
			warnings = append(warnings, "cors origin not configured")
		}

		checks := map[string]interface{}{
			"adminPasswordConfigured":    adminConfigured,
			"popEnforced":                popEnforced,
			"popSignerConfigured":        popConfigured,
			"popSignerPubkey":            popPubkey,
			"auditMode":                  auditMode,
			"auditOperationalReady":      auditReady,
			"auditPrimarySinkConfigured": auditPrimary,
			"corsOrigin":                 deps.Config.CORSOrigin,
		}
		if popErr != nil {
			checks["popSignerError"] = popErr.Error()
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ready":          len(blocking) == 0,
			"checkedAt":      time.Now().UTC().Format(time.RFC3339Nano),
			"checks":         checks,
			"blockingIssues": nonNilSlice(blocking),
			"warnings":       nonNilSlice(warnings),
		})
	}
}

func nonNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// --- Metadata -----------------------------------------------------------

var base58Charset = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)

func handleMintMetadata(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mint := strings.TrimSuffix(chi.URLParam(r, "mintJSON"), ".json")
		if !base58Charset.MatchString(mint) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid mint"})
			return
		}
		if _, err := base58.Decode(mint); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid mint"})
			return
		}

		events, err := deps.Events.GetEvents(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		var match *claims.Event
		for _, e := range events {
			if e.SolanaMint == mint {
				match = e
				break
			}
		}
		if match == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"name":        match.Title,
			"symbol":      "TICKET",
			"description": "Participation ticket for " + match.Title,
			"attributes": []map[string]string{
				{"trait_type": "host", "value": match.Host},
				{"trait_type": "datetime", "value": match.Datetime},
			},
		})
	}
}

// --- Users ----------------------------------------------------------------

func handleUserRegister(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID      string `json:"userId" validate:"required"`
			DisplayName string `json:"displayName" validate:"required"`
			Pin         string `json:"pin" validate:"required,min=4"`
		}
		if !decodeAndValidate(w, r, &body) {
			return
		}
		user, err := deps.Users.Register(r.Context(), body.UserID, body.DisplayName, body.Pin)
		switch {
		case errors.Is(err, identity.ErrInvalidUserID):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, identity.ErrDuplicateUserID):
			writeError(w, http.StatusConflict, err)
		case err != nil:
			writeError(w, http.StatusInternalServerError, err)
		default:
			writeJSON(w, http.StatusOK, user)
		}
	}
}

func handleAuthVerify(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			UserID string `json:"userId" validate:"required"`
			Pin    string `json:"pin" validate:"required"`
		}
		if !decodeAndValidate(w, r, &body) {
			return
		}
		user, err := deps.Users.Verify(r.Context(), body.UserID, body.Pin)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

// --- Receipts ---------------------------------------------------------

func handleReceiptVerify(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var receipt receipts.ParticipationReceipt
		if !decodeJSON(w, r, &receipt) {
			return
		}
		result, err := receipts.Verify(r.Context(), deps.Chain, &receipt, deps.Source)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		status := http.StatusOK
		if !result.OK {
			status = http.StatusConflict
		}
		writeJSON(w, status, result)
	}
}

func handleReceiptVerifyCode(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			EventID          string `json:"eventId"`
			ConfirmationCode string `json:"confirmationCode"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		receipt, err := deps.Receipts.GetByCode(r.Context(), body.EventID, body.ConfirmationCode)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "receipt not found"})
			return
		}
		result, err := receipts.Verify(r.Context(), deps.Chain, receipt, deps.Source)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		status := http.StatusOK
		if !result.OK {
			status = http.StatusConflict
		}
		writeJSON(w, status, result)
	}
}

// --- Admin ------------------------------------------------------------

func handleAdminLogin(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Token string `json:"token"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		actor, err := deps.Registry.Authenticate(r.Context(), body.Token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		session, err := deps.Sessions.Issue(*actor)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"sessionToken": session,
			"actor":        actor,
		})
	}
}

func handleAdminInvite(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireMaster(w, r); !ok {
			return
		}
		var body struct {
			Name string `json:"name"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		token, rec, err := deps.Registry.GenerateInvite(r.Context(), body.Name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"token": token, "invite": rec})
	}
}

func handleAdminRename(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireMaster(w, r); !ok {
			return
		}
		var body struct {
			Token string `json:"token"`
			Name  string `json:"name"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if err := deps.Registry.RenameInvite(r.Context(), body.Token, body.Name); err != nil {
			if errors.Is(err, identity.ErrInviteNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
	}
}

func handleAdminRevoke(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireMaster(w, r)
		if !ok {
			return
		}
		var body struct {
			Token string `json:"token"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if err := deps.Registry.RevokeInvite(r.Context(), body.Token, actor.AdminID); err != nil {
			if errors.Is(err, identity.ErrInviteNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
	}
}

func handleAdminInvites(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireOperator(w, r); !ok {
			return
		}
		invites, err := deps.Registry.ListInvites(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, invites)
	}
}

func disclosureParams(r *http.Request) disclosure.Params {
	q := r.URL.Query()
	params := disclosure.Params{IncludeRevoked: q.Get("includeRevoked") == "true"}
	if raw := q.Get("transferLimit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			params.TransferLimit = n
		}
	}
	return params
}

func handleAdminTransfers(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireOperator(w, r)
		if !ok {
			return
		}
		role := "admin"
		if actor.Source == identity.SourceMaster {
			role = "master"
		}
		graph, err := deps.Disclosure.Disclosure(r.Context(), role, disclosureParams(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		for _, admin := range graph.Admins {
			if admin.AdminID == actor.AdminID || role == "master" {
				writeJSON(w, http.StatusOK, admin.Users)
				return
			}
		}
		writeJSON(w, http.StatusOK, []disclosure.UserSummary{})
	}
}

func handleMasterAuditLogs(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireMaster(w, r); !ok {
			return
		}
		logs, err := deps.Chain.GetAuditLogs(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

func handleMasterAuditIntegrity(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireMaster(w, r); !ok {
			return
		}
		limit := 200
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil {
				limit = n
			}
		}
		verifyImmutable := r.URL.Query().Get("verifyImmutable") == "true"
		report, err := deps.Chain.VerifyIntegrity(r.Context(), limit, verifyImmutable, deps.ObjectStore)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		status := http.StatusOK
		if !report.OK {
			status = http.StatusConflict
		}
		writeJSON(w, status, report)
	}
}

func handleMasterTransfers(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireMaster(w, r); !ok {
			return
		}
		graph, err := deps.Disclosure.Disclosure(r.Context(), "master", disclosureParams(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		var all []disclosure.UserSummary
		for _, admin := range graph.Admins {
			all = append(all, admin.Users...)
		}
		writeJSON(w, http.StatusOK, all)
	}
}

func handleMasterAdminDisclosures(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireMaster(w, r); !ok {
			return
		}
		graph, err := deps.Disclosure.Disclosure(r.Context(), "master", disclosureParams(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, graph)
	}
}

func handleMasterSearch(deps *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := requireMaster(w, r); !ok {
			return
		}
		query := r.URL.Query().Get("q")
		results, err := deps.Disclosure.Search(r.Context(), query, disclosureParams(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}
