package identity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/teslabridge/quotaserver/internal/util"
)

// ErrUnauthorized is the single failure outcome of identity verification.
// Provider internals (network errors, response bodies) are logged, never surfaced.
var ErrUnauthorized = errors.New("identity: unauthorized")

// Verifier confirms that a bearer credential was issued to a claimed user.
type Verifier interface {
	// Verify checks the credential against the claimed user identity.
	Verify(ctx context.Context, credential, claimedUserID string) error
	// Resolve returns the identity the credential was issued to.
	Resolve(ctx context.Context, credential string) (string, error)
}

// NormalizeUserID normalizes a user identity for storage and comparison.
func NormalizeUserID(userID string) string {
	return strings.ToLower(strings.TrimSpace(userID))
}

// HTTPVerifier verifies credentials against the vehicle OAuth userinfo endpoint.
// Every call is a fresh round trip; provider responses are never cached.
type HTTPVerifier struct {
	endpoint string
	client   *http.Client
}

// NewHTTPVerifier constructs an HTTPVerifier. The client's timeout bounds each
// verification call; a nil client falls back to a 10 second default.
func NewHTTPVerifier(endpoint string, client *http.Client) *HTTPVerifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPVerifier{endpoint: endpoint, client: client}
}

// userinfoProfile is the subset of the provider profile the bridge reads.
type userinfoProfile struct {
	Email string `json:"email"`
	Sub   string `json:"sub"`
}

// maxProfileBytes caps how much of the provider response is read.
const maxProfileBytes = 1 << 20

// Verify implements Verifier.
func (v *HTTPVerifier) Verify(ctx context.Context, credential, claimedUserID string) error {
	claimed := NormalizeUserID(claimedUserID)
	if claimed == "" {
		return ErrUnauthorized
	}

	profile, errFetch := v.fetchProfile(ctx, credential)
	if errFetch != nil {
		return errFetch
	}

	email := NormalizeUserID(profile.Email)
	if email == "" {
		log.Warnf("identity: profile missing email for credential %s", util.MaskCredential(credential))
		return ErrUnauthorized
	}
	if email != claimed {
		log.Warnf("identity: credential %s does not match requested user", util.MaskCredential(credential))
		return ErrUnauthorized
	}
	return nil
}

// Resolve implements Verifier. It prefers the profile email and falls back to
// the provider-assigned subject identifier.
func (v *HTTPVerifier) Resolve(ctx context.Context, credential string) (string, error) {
	profile, errFetch := v.fetchProfile(ctx, credential)
	if errFetch != nil {
		return "", errFetch
	}

	if email := NormalizeUserID(profile.Email); email != "" {
		return email, nil
	}
	if sub := strings.TrimSpace(profile.Sub); sub != "" {
		return sub, nil
	}
	log.Warnf("identity: unable to resolve identity for credential %s", util.MaskCredential(credential))
	return "", ErrUnauthorized
}

// fetchProfile performs the userinfo round trip and decodes the profile.
func (v *HTTPVerifier) fetchProfile(ctx context.Context, credential string) (userinfoProfile, error) {
	var profile userinfoProfile

	token := strings.TrimSpace(credential)
	if token == "" {
		return profile, ErrUnauthorized
	}

	req, errReq := http.NewRequestWithContext(ctx, http.MethodGet, v.endpoint, nil)
	if errReq != nil {
		log.Errorf("identity: build userinfo request: %v", errReq)
		return profile, ErrUnauthorized
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, errDo := v.client.Do(req)
	if errDo != nil {
		log.Warnf("identity: userinfo call failed for credential %s: %v", util.MaskCredential(token), errDo)
		return profile, ErrUnauthorized
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warnf("identity: userinfo returned status %d for credential %s", resp.StatusCode, util.MaskCredential(token))
		return profile, ErrUnauthorized
	}

	body, errRead := io.ReadAll(io.LimitReader(resp.Body, maxProfileBytes))
	if errRead != nil {
		log.Warnf("identity: read userinfo response: %v", errRead)
		return profile, ErrUnauthorized
	}
	if errUnmarshal := json.Unmarshal(body, &profile); errUnmarshal != nil {
		log.Warnf("identity: decode userinfo response: %v", errUnmarshal)
		return profile, ErrUnauthorized
	}
	return profile, nil
}
