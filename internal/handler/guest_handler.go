package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"guest-access/internal/fingerprint"
	"guest-access/internal/login"
	"guest-access/internal/models"
	"guest-access/internal/service"
	"guest-access/internal/session"
	"guest-access/internal/util"
	"guest-access/internal/verification"
)

// flowCookieName keys the browser's pending flow state. It is not the
// session cookie; it only scopes in-flight verification steps.
const flowCookieName = "guestFlow"

var validate = validator.New()

// GuestHandler handles HTTP requests for the guest access flow
type GuestHandler struct {
	guestService *service.GuestService
	codec        *session.Codec
	logger       *zap.Logger
}

// NewGuestHandler creates a new guest handler
func NewGuestHandler(guestService *service.GuestService, codec *session.Codec, logger *zap.Logger) *GuestHandler {
	return &GuestHandler{
		guestService: guestService,
		codec:        codec,
		logger:       logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

// successResponse creates a successful response
func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

// errorResponse creates an error response
func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// errTryAgain is the only text a guest sees for a backend failure. Raw
// store and provider errors go to the log, never the response body.
var errTryAgain = errors.New("something went wrong, please try again")

// guestSafeError keeps sentinel taxonomy text in the body and replaces
// anything that maps to a 5xx with a generic answer.
func guestSafeError(statusCode int, err error) error {
	if statusCode < http.StatusInternalServerError {
		return err
	}
	if errors.Is(err, verification.ErrUpgradeWriteFailure) {
		return verification.ErrUpgradeWriteFailure
	}
	return errTryAgain
}

// RegisterRoutes registers all guest access routes
func (h *GuestHandler) RegisterRoutes(router chi.Router) {
	router.Route("/guest", func(r chi.Router) {
		r.Post("/resolve-link", h.ResolveLink)
		r.Post("/submit-weak-secret", h.SubmitWeakSecret)
		r.Post("/select-reservation", h.SelectReservation)
		r.Post("/collect-identity", h.CollectIdentity)
		r.Post("/confirm-identity", h.ConfirmIdentity)
		r.Post("/complete-strong-verification", h.CompleteStrongVerification)
		r.Get("/session", h.ValidateSession)
	})

	router.Route("/login", func(r chi.Router) {
		r.Post("/phone", h.StartPhoneLogin)
		r.Post("/pin", h.SubmitPin)
		r.Post("/otp", h.SubmitOtp)
		r.Post("/create-pin", h.CreatePin)
	})
}

type resolveLinkRequest struct {
	Token string `json:"token" validate:"required"`
}

// ResolveLink handles magic link resolution
func (h *GuestHandler) ResolveLink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req resolveLinkRequest
	if err := h.decode(w, r, &req); err != nil {
		return
	}

	lctx, err := h.guestService.ResolveLink(ctx, req.Token)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to resolve link")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(lctx, "Link resolved"))
}

type weakSecretRequest struct {
	Token    string `json:"token" validate:"required"`
	Fragment string `json:"fragment" validate:"required,len=4,numeric"`
}

// SubmitWeakSecret handles the 4-digit phone fragment check
func (h *GuestHandler) SubmitWeakSecret(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req weakSecretRequest
	if err := h.decode(w, r, &req); err != nil {
		return
	}

	result, err := h.guestService.SubmitWeakSecret(ctx, h.caller(w, r), req.Token, req.Fragment)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Verification failed")
		return
	}

	h.respondWithResult(w, result)
	h.logger.Info("Weak secret submitted via HTTP",
		util.String("status", string(result.Status)),
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "SubmitWeakSecret"),
	)
}

type selectReservationRequest struct {
	Token         string `json:"token" validate:"required"`
	ReservationID string `json:"reservationId" validate:"required"`
}

// SelectReservation resolves an ambiguous weak-secret match
func (h *GuestHandler) SelectReservation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req selectReservationRequest
	if err := h.decode(w, r, &req); err != nil {
		return
	}

	result, err := h.guestService.SelectReservation(ctx, h.caller(w, r), req.Token, req.ReservationID)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to select reservation")
		return
	}

	h.respondWithResult(w, result)
}

type collectIdentityRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=120"`
	Phone string `json:"phone,omitempty" validate:"omitempty,min=7,max=20"`
}

// CollectIdentity records the guest's name and optional phone
func (h *GuestHandler) CollectIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req collectIdentityRequest
	if err := h.decode(w, r, &req); err != nil {
		return
	}

	result, err := h.guestService.CollectIdentity(ctx, h.caller(w, r), req.Name, req.Phone)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to collect identity")
		return
	}

	h.respondWithResult(w, result)
}

type confirmIdentityRequest struct {
	Accept bool `json:"accept"`
}

// ConfirmIdentity handles the "is this you?" answer for migrated users
func (h *GuestHandler) ConfirmIdentity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req confirmIdentityRequest
	if err := h.decode(w, r, &req); err != nil {
		return
	}

	result, err := h.guestService.ConfirmMigratedUser(ctx, h.caller(w, r), req.Accept)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to confirm identity")
		return
	}

	h.respondWithResult(w, result)
}

type strongVerificationRequest struct {
	ProviderToken string `json:"providerToken" validate:"required"`
}

// CompleteStrongVerification finishes the pending OTP flow
func (h *GuestHandler) CompleteStrongVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req strongVerificationRequest
	if err := h.decode(w, r, &req); err != nil {
		return
	}

	result, err := h.guestService.CompleteStrongVerification(ctx, h.caller(w, r), req.ProviderToken)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Verification failed")
		return
	}

	h.respondWithResult(w, result)
	h.logger.Info("Strong verification completed via HTTP",
		util.Duration("duration", time.Since(startTime)),
		util.String("method", "CompleteStrongVerification"),
	)
}

// ValidateSession re-validates the session cookie against the caller's
// fingerprint.
func (h *GuestHandler) ValidateSession(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(session.CookieName)
	if err != nil {
		h.respondWithError(w, http.StatusUnauthorized, session.ErrSessionInvalid, "No session")
		return
	}

	payload, err := h.guestService.ValidateSession(cookie.Value, fingerprint.Derive(r))
	if err != nil {
		h.respondWithError(w, http.StatusUnauthorized, err, "Session invalid")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(payload, "Session valid"))
}

type phoneLoginRequest struct {
	Phone string `json:"phone" validate:"required,min=7,max=20"`
}

// StartPhoneLogin begins a phone login for a durable account
func (h *GuestHandler) StartPhoneLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req phoneLoginRequest
	if err := h.decode(w, r, &req); err != nil {
		return
	}

	result, err := h.guestService.StartPhoneLogin(ctx, h.caller(w, r), req.Phone)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to start login")
		return
	}

	h.respondWithResult(w, result)
}

type pinRequest struct {
	Pin string `json:"pin" validate:"required,len=4,numeric"`
}

// SubmitPin checks a login PIN
func (h *GuestHandler) SubmitPin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req pinRequest
	if err := h.decode(w, r, &req); err != nil {
		return
	}

	result, err := h.guestService.SubmitLoginPin(ctx, h.caller(w, r), req.Pin)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to check PIN")
		return
	}

	h.respondWithResult(w, result)
}

// SubmitOtp completes the OTP leg of a phone login
func (h *GuestHandler) SubmitOtp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req strongVerificationRequest
	if err := h.decode(w, r, &req); err != nil {
		return
	}

	result, err := h.guestService.SubmitLoginOtp(ctx, h.caller(w, r), req.ProviderToken)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Verification failed")
		return
	}

	h.respondWithResult(w, result)
}

// CreatePin stores a self-chosen PIN after OTP verification
func (h *GuestHandler) CreatePin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req pinRequest
	if err := h.decode(w, r, &req); err != nil {
		return
	}

	result, err := h.guestService.CreateLoginPin(ctx, h.caller(w, r), req.Pin)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to create PIN")
		return
	}

	h.respondWithResult(w, result)
}

// Helper Methods

// caller builds the request's flow key and fingerprint. A missing flow
// cookie is created on the spot so the whole flow shares one key.
func (h *GuestHandler) caller(w http.ResponseWriter, r *http.Request) service.Caller {
	flowID := ""
	if cookie, err := r.Cookie(flowCookieName); err == nil && cookie.Value != "" {
		flowID = cookie.Value
	} else {
		flowID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     flowCookieName,
			Value:    flowID,
			Path:     "/",
			HttpOnly: true,
			Secure:   h.codec.Secure(),
			SameSite: http.SameSiteLaxMode,
		})
	}

	return service.Caller{
		FlowID:      flowID,
		Fingerprint: fingerprint.Derive(r),
		RemoteAddr:  r.RemoteAddr,
	}
}

// respondWithResult writes an access result, setting the session cookie
// when one was granted.
func (h *GuestHandler) respondWithResult(w http.ResponseWriter, result *service.AccessResult) {
	if result.Session != nil {
		http.SetCookie(w, h.codec.Cookie(result.Session.Token, result.Session.ExpiresAt))
	}
	h.respondWithJSON(w, http.StatusOK, successResponse(result, string(result.Status)))
}

// decode parses and validates a JSON request body
func (h *GuestHandler) decode(w http.ResponseWriter, r *http.Request, req interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return err
	}
	if err := validate.Struct(req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, err, "Invalid request")
		return err
	}
	return nil
}

// respondWithJSON sends a JSON response
func (h *GuestHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends an error response
func (h *GuestHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(guestSafeError(statusCode, err), message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *GuestHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, verification.ErrLinkNotFound), errors.Is(err, login.ErrUnknownPhone):
		return http.StatusNotFound
	case errors.Is(err, verification.ErrSecretMismatch),
		errors.Is(err, service.ErrInvalidInput),
		errors.Is(err, service.ErrInvalidReservation),
		errors.Is(err, login.ErrInvalidPin):
		return http.StatusBadRequest
	case errors.Is(err, verification.ErrTooManyAttempts):
		return http.StatusLocked
	case errors.Is(err, verification.ErrProviderTokenInvalid), errors.Is(err, session.ErrSessionInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, verification.ErrProviderIdentityMismatch), errors.Is(err, login.ErrIdentityMismatch):
		return http.StatusForbidden
	case errors.Is(err, service.ErrFlowExpired):
		return http.StatusGone
	case errors.Is(err, login.ErrIllegalTransition),
		errors.Is(err, login.ErrOtpNotIssued),
		errors.Is(err, models.ErrFlowKindMismatch):
		return http.StatusConflict
	case errors.Is(err, login.ErrOtpResendLimit):
		return http.StatusTooManyRequests
	case errors.Is(err, verification.ErrUpgradeWriteFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
