// internal/bootstrap/cookies.go
package bootstrap

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/reelpost/api/schemas"
)

// CredentialSource yields the credential records for one session.
type CredentialSource interface {
	Load() ([]schemas.SessionCookie, error)
}

// CookieStore reads a persisted cookie file. It never writes to it.
type CookieStore struct {
	path   string
	domain string
	logger *zap.Logger
	now    func() time.Time
}

// NewCookieStore creates a store for the file at path. Records outside the
// registrable domain are dropped on load.
func NewCookieStore(path, registrableDomain string, logger *zap.Logger) *CookieStore {
	return &CookieStore{
		path:   path,
		domain: strings.ToLower(strings.TrimPrefix(registrableDomain, ".")),
		logger: logger.Named("cookies"),
		now:    time.Now,
	}
}

// Load reads and filters the cookie file.
func (s *CookieStore) Load() ([]schemas.SessionCookie, error) {
	path, err := homedir.Expand(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand cookie file path: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}
	all, err := ParseCookies(data)
	if err != nil {
		return nil, fmt.Errorf("cookie file %s: %w", path, err)
	}

	now := s.now()
	kept := make([]schemas.SessionCookie, 0, len(all))
	for _, c := range all {
		if !InScope(c.Domain, s.domain) {
			s.logger.Warn("Skipping cookie outside the platform domain",
				zap.String("name", c.Name), zap.String("domain", c.Domain))
			continue
		}
		if exp, ok := expiry(c); ok && exp.Before(now) {
			s.logger.Warn("Skipping expired cookie", zap.String("name", c.Name), zap.Time("expired", exp))
			continue
		}
		kept = append(kept, c)
	}
	s.logger.Debug("Loaded session cookies", zap.Int("kept", len(kept)), zap.Int("total", len(all)))
	return kept, nil
}

// rawCookie accepts both the DevTools / storage-state field names and the
// browser-extension export names.
type rawCookie struct {
	Name           string   `json:"name"`
	Value          string   `json:"value"`
	Domain         string   `json:"domain"`
	Path           string   `json:"path"`
	Expires        *float64 `json:"expires"`
	ExpirationDate *float64 `json:"expirationDate"`
	HTTPOnly       bool     `json:"httpOnly"`
	Secure         bool     `json:"secure"`
	SameSite       string   `json:"sameSite"`
}

// ParseCookies decodes a bare JSON array of cookies or a storage-state
// document with a "cookies" array. Records without a name are dropped.
func ParseCookies(data []byte) ([]schemas.SessionCookie, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty cookie document")
	}

	var raws []rawCookie
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("failed to parse cookie array: %w", err)
		}
	case '{':
		var state struct {
			Cookies []rawCookie `json:"cookies"`
		}
		if err := json.Unmarshal(data, &state); err != nil {
			return nil, fmt.Errorf("failed to parse storage state: %w", err)
		}
		raws = state.Cookies
	default:
		return nil, fmt.Errorf("unrecognized cookie document")
	}

	out := make([]schemas.SessionCookie, 0, len(raws))
	for _, r := range raws {
		if r.Name == "" {
			continue
		}
		c := schemas.SessionCookie{
			Name:     r.Name,
			Value:    r.Value,
			Domain:   r.Domain,
			Path:     r.Path,
			HTTPOnly: r.HTTPOnly,
			Secure:   r.Secure,
			SameSite: r.SameSite,
		}
		switch {
		case r.Expires != nil && *r.Expires > 0:
			c.Expires = *r.Expires
		case r.ExpirationDate != nil && *r.ExpirationDate > 0:
			c.Expires = *r.ExpirationDate
		}
		out = append(out, c)
	}
	return out, nil
}

// InScope reports whether a cookie domain belongs to the registrable domain
// or one of its subdomains. An empty registrable domain accepts everything.
func InScope(cookieDomain, registrable string) bool {
	if registrable == "" {
		return true
	}
	d := strings.ToLower(strings.TrimPrefix(cookieDomain, "."))
	return d == registrable || strings.HasSuffix(d, "."+registrable)
}

// RegistrableDomain returns the eTLD+1 of the URL's host.
func RegistrableDomain(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("url has no host: %s", rawURL)
	}
	return publicsuffix.EffectiveTLDPlusOne(host)
}

func expiry(c schemas.SessionCookie) (time.Time, bool) {
	if c.Expires <= 0 {
		return time.Time{}, false
	}
	return time.Unix(int64(c.Expires), 0), true
}
