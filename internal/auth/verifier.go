package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-ldap/ldap/v3"
)

// Verifier checks a username/password pair against an external directory.
// It returns (false, nil) for bad credentials and an error only for
// infrastructure failures, so callers can tell 401 apart from 502.
type Verifier interface {
	Verify(ctx context.Context, username, password string) (bool, error)
}

// --- LDAP ---

// LDAPConfig describes a simple-bind LDAP directory.
type LDAPConfig struct {
	// URI is an ldap:// or ldaps:// URL.
	URI string
	// UserDNTemplate is the DN with the username spliced in,
	// e.g. "uid=%s,ou=Users,dc=example,dc=org".
	UserDNTemplate string
}

// LDAPVerifier authenticates by attempting a simple bind as the user.
type LDAPVerifier struct {
	cfg LDAPConfig
}

func NewLDAPVerifier(cfg LDAPConfig) *LDAPVerifier {
	return &LDAPVerifier{cfg: cfg}
}

func (v *LDAPVerifier) Verify(_ context.Context, username, password string) (bool, error) {
	// An empty password would trigger an unauthenticated bind, which most
	// directories treat as success.
	if username == "" || password == "" {
		return false, nil
	}

	conn, err := ldap.DialURL(v.cfg.URI)
	if err != nil {
		return false, fmt.Errorf("ldap dial failed: %w", err)
	}
	defer conn.Close()

	dn := fmt.Sprintf(v.cfg.UserDNTemplate, ldap.EscapeDN(username))
	if err := conn.Bind(dn, password); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
			return false, nil
		}
		return false, fmt.Errorf("ldap bind failed: %w", err)
	}
	return true, nil
}

// --- Remote URL ---

// URLVerifier delegates the credential check to an external HTTP endpoint.
// Any 2xx response means the credentials are valid.
type URLVerifier struct {
	endpoint string
	client   *http.Client
}

func NewURLVerifier(endpoint string) *URLVerifier {
	return &URLVerifier{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (v *URLVerifier) Verify(ctx context.Context, username, password string) (bool, error) {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("auth endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, nil
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return false, nil
	}
	return false, fmt.Errorf("auth endpoint returned %d", resp.StatusCode)
}

// ErrNoVerifier is returned by NewVerifier for an unknown method name.
var ErrNoVerifier = errors.New("auth: unknown authentication method")

// NewVerifier picks a Verifier by configured method name ("ldap" or "url").
func NewVerifier(method string, ldapCfg LDAPConfig, authURL string) (Verifier, error) {
	switch method {
	case "ldap":
		return NewLDAPVerifier(ldapCfg), nil
	case "url":
		return NewURLVerifier(authURL), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrNoVerifier, method)
	}
}
