package dynamics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultAuthority = "https://login.microsoftonline.com"
	DefaultTimeout   = 60 * time.Second
)

// D365 represents the Dynamics 365 Finance & Operations client
type D365 struct {
	Resty        *resty.Client
	URL          string
	SystemURL    string
	TenantID     string
	ClientID     string
	ClientSecret string
	Authority    string
	AccessToken  string
	ExpiresAt    time.Time
	Logger       *zap.Logger

	// staticToken is set when the caller supplied a bearer token up front.
	staticToken bool
	mu          sync.Mutex
}

// Option customises a D365 client.
type Option func(*D365)

// WithTimeout bounds every request made by the client.
func WithTimeout(timeout time.Duration) Option {
	return func(d *D365) {
		if timeout > 0 {
			d.Resty.SetTimeout(timeout)
		}
	}
}

// WithAuthority overrides the Azure AD authority used for the client credentials grant.
func WithAuthority(authority string) Option {
	return func(d *D365) {
		if authority != "" {
			d.Authority = authority
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *D365) {
		if logger != nil {
			d.Logger = logger
		}
	}
}

// NewD365Client initializes a new Dynamics 365 client for the given connection
func NewD365Client(conn ConnectionContext, opts ...Option) *D365 {
	conn = conn.Normalize()
	client := resty.New().SetTimeout(DefaultTimeout)

	d := &D365{
		Resty:        client,
		URL:          conn.BaseURL,
		SystemURL:    conn.SystemURL,
		TenantID:     conn.TenantID,
		ClientID:     conn.ClientID,
		ClientSecret: conn.ClientSecret,
		Authority:    DefaultAuthority,
		Logger:       zap.NewNop(),
	}
	if conn.Token != "" {
		d.AccessToken = bareToken(conn.Token)
		d.staticToken = true
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Connection returns the connection the client was built from.
func (d *D365) Connection() ConnectionContext {
	d.mu.Lock()
	defer d.mu.Unlock()

	conn := ConnectionContext{
		TenantID:     d.TenantID,
		BaseURL:      d.URL,
		SystemURL:    d.SystemURL,
		ClientID:     d.ClientID,
		ClientSecret: d.ClientSecret,
	}
	if d.staticToken {
		conn.Token = d.AccessToken
	}
	return conn
}

// Fetch makes an authenticated HTTP GET request for requestURL and returns the response body
func (d *D365) Fetch(ctx context.Context, requestURL, authorization string) ([]byte, error) {
	requestID := uuid.NewString()
	d.Logger.Debug("fetching metadata",
		zap.String("url", requestURL),
		zap.String("request_id", requestID))

	resp, err := d.Resty.R().
		SetContext(ctx).
		SetHeader("Authorization", authorization).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetHeader("ms-client-request-id", requestID).
		Get(requestURL)

	if err != nil {
		kind := ErrTransport
		if isTimeout(err) {
			kind = ErrTimeout
		}
		return nil, &QueryError{Kind: kind, Err: fmt.Errorf("GET %s: %w", requestURL, err)}
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, &QueryError{Kind: ErrAuthentication, StatusCode: status, Err: fmt.Errorf("%s", resp.String())}
	case !resp.IsSuccess():
		return nil, &QueryError{Kind: ErrTransport, StatusCode: status, Err: fmt.Errorf("error making GET request: %s", resp.String())}
	}

	d.Logger.Debug("metadata received",
		zap.String("request_id", requestID),
		zap.Int("bytes", len(resp.Body())),
		zap.Duration("elapsed", resp.Time()))

	return resp.Body(), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
