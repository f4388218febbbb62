// Package inviteapi exposes the invite lifecycle over JSON HTTP.
package inviteapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"securechat/cmd/identity"
	"securechat/cmd/internal/invite"
)

const defaultMaxBodyBytes = 64 << 10

// Handler wires HTTP routes to an invite.Service.
type Handler struct {
	log          *slog.Logger
	svc          *invite.Service
	sessions     identity.SessionProvider
	now          func() time.Time
	maxBodyBytes int64
}

// HandlerOption configures optional handler dependencies.
type HandlerOption func(*Handler)

// WithSessions overrides how the acting user is resolved. The default reads
// the user attached to the request context with identity.WithUser.
func WithSessions(p identity.SessionProvider) HandlerOption {
	return func(h *Handler) {
		if h == nil || p == nil {
			return
		}
		h.sessions = p
	}
}

// WithClock sets the time used to derive invite status in responses.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if h == nil || now == nil {
			return
		}
		h.now = now
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handler) {
		if h == nil || n <= 0 {
			return
		}
		h.maxBodyBytes = n
	}
}

// NewHandler constructs a Handler.
func NewHandler(log *slog.Logger, svc *invite.Service, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("inviteapi: nil service")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{
		log:          log,
		svc:          svc,
		sessions:     identity.ContextSession{},
		now:          func() time.Time { return time.Now().UTC() },
		maxBodyBytes: defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires invite routes onto mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("GET /channels/{channelID}/invites", h.handleList)
	mux.HandleFunc("POST /channels/{channelID}/invites/link", h.handleCurrentLink)
	mux.HandleFunc("POST /channels/{channelID}/invites/regenerate", h.handleRegenerate)
	mux.HandleFunc("POST /channels/{channelID}/invites/email", h.handleEmail)
	mux.HandleFunc("POST /channels/{channelID}/invites/share", h.handleShare)
	mux.HandleFunc("POST /channels/{channelID}/invites/direct", h.handleDirect)
	mux.HandleFunc("DELETE /channels/{channelID}/invites/{inviteID}", h.handleRevoke)
	mux.HandleFunc("PUT /channels/{channelID}/invite-settings", h.handleSettings)
	mux.HandleFunc("GET /channels/{channelID}/invite-history", h.handleHistory)
	mux.HandleFunc("POST /invites/{channelID}/{code}/accept", h.handleAccept)
	mux.HandleFunc("POST /invites/{channelID}/{code}/decline", h.handleDecline)
	mux.HandleFunc("GET /channels/{channelID}/pending-members", h.handlePending)
	mux.HandleFunc("POST /channels/{channelID}/pending-members/approve-all", h.handleApproveAll)
	mux.HandleFunc("POST /channels/{channelID}/pending-members/reject-all", h.handleRejectAll)
	mux.HandleFunc("POST /channels/{channelID}/pending-members/{pendingID}/approve", h.handleApprove)
	mux.HandleFunc("POST /channels/{channelID}/pending-members/{pendingID}/reject", h.handleReject)
	mux.HandleFunc("GET /invite-analytics", h.handleAnalytics)
}

// ---- invites ----

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Invites(r.Context(), r.PathValue("channelID"))
	if err != nil {
		h.fail(w, "invite.list.fail", err)
		return
	}
	now := h.now()
	out := invitesResponse{
		ChannelID: snap.ChannelID,
		Invites:   make([]inviteResponse, 0, len(snap.Invites)),
		Settings:  toSettingsBody(snap.Settings),
	}
	for _, rec := range snap.Invites {
		out.Invites = append(out.Invites, toInviteResponse(rec, now, snap.Primary))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCurrentLink(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.CurrentLink(r.Context(), r.PathValue("channelID"), h.issuer(r))
	if err != nil {
		h.fail(w, "invite.link.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toInviteResponse(rec, h.now(), rec.ID))
}

func (h *Handler) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Regenerate(r.Context(), r.PathValue("channelID"), h.issuer(r))
	if err != nil {
		h.fail(w, "invite.regenerate.fail", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInviteResponse(rec, h.now(), rec.ID))
}

func (h *Handler) handleEmail(w http.ResponseWriter, r *http.Request) {
	var req emailInviteRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	res, err := h.svc.SendEmailInvites(r.Context(), r.PathValue("channelID"), req.Emails, req.Message, h.issuer(r))
	if err != nil {
		h.fail(w, "invite.email.fail", err)
		return
	}
	now := h.now()
	out := emailInviteResponse{
		Sent:    make([]inviteResponse, 0, len(res.Sent)),
		Skipped: make([]skippedResponse, 0, len(res.Skipped)),
	}
	for _, rec := range res.Sent {
		out.Sent = append(out.Sent, toInviteResponse(rec, now, ""))
	}
	for _, sk := range res.Skipped {
		out.Skipped = append(out.Skipped, skippedResponse{Email: sk.Value, Reason: sk.Reason})
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) handleShare(w http.ResponseWriter, r *http.Request) {
	var req shareRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	rec, err := h.svc.ShareLink(r.Context(), r.PathValue("channelID"), req.Method, h.issuer(r))
	if err != nil {
		h.fail(w, "invite.share.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toInviteResponse(rec, h.now(), rec.ID))
}

func (h *Handler) handleDirect(w http.ResponseWriter, r *http.Request) {
	var req directInviteRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	rec, err := h.svc.DirectInvite(r.Context(), r.PathValue("channelID"), req.UserID, h.issuer(r))
	if err != nil {
		h.fail(w, "invite.direct.fail", err)
		return
	}
	writeJSON(w, http.StatusCreated, toInviteResponse(rec, h.now(), ""))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Revoke(r.Context(), r.PathValue("channelID"), r.PathValue("inviteID"))
	if err != nil {
		h.fail(w, "invite.revoke.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toInviteResponse(rec, h.now(), ""))
}

func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsBody
	if err := decodeJSON(w, r, h.maxBodyBytes, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	s, err := h.svc.UpdateSettings(r.Context(), r.PathValue("channelID"), req.toSettings())
	if err != nil {
		h.fail(w, "invite.settings.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsBody(s))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.History(r.Context(), r.PathValue("channelID"))
	if err != nil {
		h.fail(w, "invite.history.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: toEventResponses(events)})
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	events, err := h.svc.Analytics(r.Context(), strings.TrimSpace(r.URL.Query().Get("channel_id")))
	if err != nil {
		h.fail(w, "invite.analytics.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: toEventResponses(events)})
}

// ---- acceptance ----

func (h *Handler) handleAccept(w http.ResponseWriter, r *http.Request) {
	var req acceptRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}

	in := invite.AcceptInput{
		ChannelID: r.PathValue("channelID"),
		Code:      r.PathValue("code"),
		Email:     req.Email,
		Message:   req.Message,
	}
	if u, err := h.sessions.CurrentUser(r.Context()); err == nil {
		in.User = &u
	} else if req.Guest != nil {
		in.Guest = &identity.Guest{Name: req.Guest.Name, Avatar: req.Guest.Avatar}
	}

	res, err := h.svc.Accept(r.Context(), in)
	if err != nil {
		h.fail(w, "invite.accept.fail", err)
		return
	}
	out := acceptResponse{Outcome: res.Outcome.String()}
	if res.Grant != nil {
		g := toGrantResponse(*res.Grant)
		out.Grant = &g
	}
	if res.Pending != nil {
		p := toPendingResponse(*res.Pending)
		out.Pending = &p
	}
	status := http.StatusOK
	if res.Outcome == invite.PendingApproval {
		status = http.StatusAccepted
	}
	writeJSON(w, status, out)
}

func (h *Handler) handleDecline(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Decline(r.Context(), r.PathValue("channelID"), r.PathValue("code")); err != nil {
		h.fail(w, "invite.decline.fail", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- pending members ----

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	members, err := h.svc.PendingMembers(r.Context(), r.PathValue("channelID"))
	if err != nil {
		h.fail(w, "invite.pending.list.fail", err)
		return
	}
	out := pendingMembersResponse{Members: make([]pendingMemberResponse, 0, len(members))}
	for _, m := range members {
		out.Members = append(out.Members, toPendingResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	grant, found, err := h.svc.Approve(r.Context(), r.PathValue("channelID"), r.PathValue("pendingID"))
	if err != nil {
		h.fail(w, "invite.pending.approve.fail", err)
		return
	}
	out := decisionResponse{Found: found}
	if found {
		g := toGrantResponse(grant)
		out.Grant = &g
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	m, found, err := h.svc.Reject(r.Context(), r.PathValue("channelID"), r.PathValue("pendingID"), req.Reason)
	if err != nil {
		h.fail(w, "invite.pending.reject.fail", err)
		return
	}
	out := decisionResponse{Found: found}
	if found {
		p := toPendingResponse(m)
		out.Member = &p
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleApproveAll(w http.ResponseWriter, r *http.Request) {
	grants, err := h.svc.ApproveAll(r.Context(), r.PathValue("channelID"))
	if err != nil {
		h.fail(w, "invite.pending.approve_all.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResponse{Count: len(grants)})
}

func (h *Handler) handleRejectAll(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	rejected, err := h.svc.RejectAll(r.Context(), r.PathValue("channelID"), req.Reason)
	if err != nil {
		h.fail(w, "invite.pending.reject_all.fail", err)
		return
	}
	writeJSON(w, http.StatusOK, bulkResponse{Count: len(rejected)})
}

// ---- helpers ----

func (h *Handler) issuer(r *http.Request) invite.Issuer {
	u, err := h.sessions.CurrentUser(r.Context())
	if err != nil {
		return invite.Issuer{}
	}
	return invite.Issuer{UserID: u.ID, Name: u.Username}
}

// fail maps service errors to responses. Every redemption failure gets the
// same answer so callers cannot tell which codes exist; the concrete kind is
// only logged.
func (h *Handler) fail(w http.ResponseWriter, event string, err error) {
	switch {
	case invite.IsNoLongerValid(err):
		h.log.Info(event, "reason", invite.ErrorKind(err))
		writeError(w, http.StatusBadRequest, "invalid_invite", invite.ErrNoLongerValid.Error())
	case errors.Is(err, invite.ErrGuestsNotAllowed):
		writeError(w, http.StatusForbidden, "guests_not_allowed", "this invitation requires an account")
	case invite.IsValidation(err):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, invite.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "invite not found")
	case errors.Is(err, invite.ErrStorage):
		h.log.Error(event, "err", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "please retry later")
	default:
		h.log.Error(event, "err", err)
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
