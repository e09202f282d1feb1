package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"guest-access/internal/config"
	"guest-access/internal/util"
)

var (
	// ErrTokenInvalid means the provider rejected the id token (bad,
	// expired, or revoked). Retryable by the guest.
	ErrTokenInvalid = errors.New("provider token invalid")
)

// Identity is what the provider asserts after verifying a one-time code
// or email link. Exactly one of Phone/Email is normally set, depending on
// which credential was verified.
type Identity struct {
	SubjectID string `json:"subjectId"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Provider is the strong-identity verification service.
type Provider interface {
	// VerifyIDToken checks a provider-issued token and returns the
	// asserted identity.
	VerifyIDToken(ctx context.Context, idToken string) (*Identity, error)
	// RequestCode asks the provider to send a one-time code to a phone.
	RequestCode(ctx context.Context, phone string) error
}

// HTTPProvider talks to the provider's REST API.
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPProvider(cfg *config.Config) *HTTPProvider {
	return &HTTPProvider{
		baseURL: cfg.Provider.BaseURL,
		apiKey:  cfg.Provider.APIKey,
		client:  &http.Client{Timeout: cfg.Provider.Timeout},
	}
}

func (p *HTTPProvider) VerifyIDToken(ctx context.Context, idToken string) (*Identity, error) {
	body, _ := json.Marshal(map[string]string{"idToken": idToken})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/tokens/verify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider verify call failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest:
		return nil, ErrTokenInvalid
	default:
		return nil, fmt.Errorf("provider verify returned status %d", resp.StatusCode)
	}

	var identity Identity
	if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
		return nil, fmt.Errorf("failed to decode provider response: %w", err)
	}
	if identity.SubjectID == "" {
		return nil, ErrTokenInvalid
	}

	identity.Phone = util.NormalizePhone(identity.Phone)
	return &identity, nil
}

func (p *HTTPProvider) RequestCode(ctx context.Context, phone string) error {
	body, _ := json.Marshal(map[string]string{"phone": util.NormalizePhone(phone)})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/codes", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build code request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider code call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("provider code request returned status %d", resp.StatusCode)
	}
	return nil
}
