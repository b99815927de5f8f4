package dynamics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const bearerPrefix = "Bearer "

// AuthenticateApi performs OAuth authentication to obtain an access token
func (d *D365) AuthenticateApi(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.authenticateLocked(ctx)
}

func (d *D365) authenticateLocked(ctx context.Context) error {
	if d.TenantID == "" || d.ClientID == "" || d.ClientSecret == "" {
		return &QueryError{Kind: ErrConfiguration, Err: fmt.Errorf("tenant, client id and client secret are required to request a token")}
	}
	if d.URL == "" {
		return &QueryError{Kind: ErrConfiguration, Err: fmt.Errorf("url is required as the token resource")}
	}

	tokenURL := strings.TrimSuffix(d.Authority, "/") + "/" + d.TenantID + "/oauth2/token"
	resp, err := d.Resty.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			"client_id":     d.ClientID,
			"resource":      d.URL,
			"client_secret": d.ClientSecret,
			"grant_type":    "client_credentials"}).
		Post(tokenURL)

	if err != nil {
		kind := ErrAuthentication
		if isTimeout(err) {
			kind = ErrTimeout
		}
		return &QueryError{Kind: kind, Err: fmt.Errorf("error obtaining access token from Azure AD: %w", err)}
	}

	if resp.StatusCode() != 200 {
		return &QueryError{Kind: ErrAuthentication, StatusCode: resp.StatusCode(), Err: fmt.Errorf("failed to authenticate: %s", resp.String())}
	}

	token := Token{}
	if err := json.Unmarshal(resp.Body(), &token); err != nil {
		return &QueryError{Kind: ErrAuthentication, Err: fmt.Errorf("error parsing access token JSON: %w", err)}
	}
	if token.AccessToken == "" {
		return &QueryError{Kind: ErrAuthentication, Err: fmt.Errorf("token response carried no access_token")}
	}

	d.AccessToken = token.AccessToken
	d.ExpiresAt = time.Now().Add(tokenLifetime(token))
	d.Logger.Debug("access token acquired",
		zap.String("tenant", d.TenantID),
		zap.Time("expires_at", d.ExpiresAt))
	return nil
}

// CheckAndRefreshToken checks if the access token is expired and refreshes it if necessary
func (d *D365) CheckAndRefreshToken(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.staticToken {
		return nil
	}
	if d.AccessToken == "" || time.Now().After(d.ExpiresAt) {
		return d.authenticateLocked(ctx)
	}
	return nil
}

// Authorization returns the Authorization header value, acquiring a token when needed.
func (d *D365) Authorization(ctx context.Context) (string, error) {
	if err := d.CheckAndRefreshToken(ctx); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return AuthorizationHeader(d.AccessToken), nil
}

// AuthorizationHeader formats token as a bearer header value. Tokens that already carry
// the scheme are returned unchanged.
func AuthorizationHeader(token string) string {
	return bearerPrefix + bareToken(token)
}

func bareToken(token string) string {
	token = strings.TrimSpace(token)
	if len(token) >= len(bearerPrefix) && strings.EqualFold(token[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(token[len(bearerPrefix):])
	}
	return token
}

// tokenLifetime leaves a minute of slack before the reported expiry.
func tokenLifetime(token Token) time.Duration {
	secs, err := token.ExpiresIn.Int64()
	if err != nil || secs <= 0 {
		return 0
	}
	lifetime := time.Duration(secs) * time.Second
	if lifetime > 2*time.Minute {
		lifetime -= time.Minute
	}
	return lifetime
}
