package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"guest-access/internal/login"
	"guest-access/internal/service"
	"guest-access/internal/session"
	"guest-access/internal/verification"
)

func testHandler() *GuestHandler {
	codec := session.NewCodec([]byte("0123456789abcdef0123456789abcdef"), false, 0)
	return NewGuestHandler(nil, codec, zap.NewNop())
}

func TestGetStatusCode(t *testing.T) {
	h := testHandler()

	cases := []struct {
		err  error
		want int
	}{
		{verification.ErrLinkNotFound, http.StatusNotFound},
		{login.ErrUnknownPhone, http.StatusNotFound},
		{verification.ErrSecretMismatch, http.StatusBadRequest},
		{verification.ErrTooManyAttempts, http.StatusLocked},
		{verification.ErrProviderTokenInvalid, http.StatusUnauthorized},
		{verification.ErrProviderIdentityMismatch, http.StatusForbidden},
		{verification.ErrUpgradeWriteFailure, http.StatusBadGateway},
		{service.ErrFlowExpired, http.StatusGone},
		{login.ErrIllegalTransition, http.StatusConflict},
		{login.ErrOtpNotIssued, http.StatusConflict},
		{login.ErrOtpResendLimit, http.StatusTooManyRequests},
		{session.ErrSessionInvalid, http.StatusUnauthorized},
	}
	for _, c := range cases {
		if got := h.getStatusCode(c.err); got != c.want {
			t.Errorf("%v: expected %d, got %d", c.err, c.want, got)
		}
	}
}

func TestErrorBodiesHideBackendDetail(t *testing.T) {
	h := testHandler()

	cases := []struct {
		name     string
		err      error
		wantBody string
	}{
		{
			"raw store failure at 500",
			fmt.Errorf("failed to get magic link: gocql: no hosts available"),
			errTryAgain.Error(),
		},
		{
			"wrapped upgrade failure at 502",
			fmt.Errorf("%w: dial tcp 10.0.0.4:9042: connection refused", verification.ErrUpgradeWriteFailure),
			verification.ErrUpgradeWriteFailure.Error(),
		},
		{
			"taxonomy error keeps its text",
			verification.ErrSecretMismatch,
			verification.ErrSecretMismatch.Error(),
		},
	}
	for _, c := range cases {
		w := httptest.NewRecorder()
		h.respondWithError(w, h.getStatusCode(c.err), c.err, "Verification failed")

		var body Response
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode body: %v", c.name, err)
		}
		if body.Error != c.wantBody {
			t.Errorf("%s: body error = %q, want %q", c.name, body.Error, c.wantBody)
		}
		if strings.Contains(body.Error, "gocql") || strings.Contains(body.Error, "dial tcp") {
			t.Errorf("%s: backend detail leaked: %q", c.name, body.Error)
		}
	}
}

func TestCallerCreatesFlowCookie(t *testing.T) {
	h := testHandler()

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/guest/submit-weak-secret", nil)

	caller := h.caller(w, r)
	if caller.FlowID == "" {
		t.Fatal("expected a flow id minted for a fresh browser")
	}

	var flowCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == flowCookieName {
			flowCookie = c
		}
	}
	if flowCookie == nil {
		t.Fatal("expected the flow cookie set")
	}
	if !flowCookie.HttpOnly {
		t.Error("expected the flow cookie HttpOnly")
	}

	// A returning request keeps its key.
	r2 := httptest.NewRequest(http.MethodPost, "/api/v1/guest/collect-identity", nil)
	r2.AddCookie(&http.Cookie{Name: flowCookieName, Value: caller.FlowID})
	caller2 := h.caller(httptest.NewRecorder(), r2)
	if caller2.FlowID != caller.FlowID {
		t.Errorf("expected the same flow id, got %s and %s", caller.FlowID, caller2.FlowID)
	}
}

func TestFlowCookieMatchesSessionCookieSecurity(t *testing.T) {
	// Both cookies ride the same surface; a secure codec means a secure
	// flow cookie too.
	codec := session.NewCodec([]byte("0123456789abcdef0123456789abcdef"), true, 0)
	h := NewGuestHandler(nil, codec, zap.NewNop())

	w := httptest.NewRecorder()
	h.caller(w, httptest.NewRequest(http.MethodPost, "/api/v1/guest/resolve-link", nil))

	var flowCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == flowCookieName {
			flowCookie = c
		}
	}
	if flowCookie == nil {
		t.Fatal("expected the flow cookie set")
	}
	if !flowCookie.Secure {
		t.Error("expected the flow cookie Secure when the codec is secure")
	}
}

func TestRespondWithResultSetsSessionCookie(t *testing.T) {
	h := testHandler()

	w := httptest.NewRecorder()
	h.respondWithResult(w, &service.AccessResult{
		Status: service.StatusGranted,
		Session: &service.SessionGrant{
			Token:     "opaque-session-value",
			ExpiresAt: time.Now().Add(session.TTL),
			Redirect:  "/guest/dashboard",
		},
	})

	var sessionCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == session.CookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("expected the session cookie set")
	}
	if !sessionCookie.HttpOnly || sessionCookie.SameSite != http.SameSiteLaxMode {
		t.Errorf("expected an HttpOnly SameSite=Lax cookie, got %+v", sessionCookie)
	}
}
