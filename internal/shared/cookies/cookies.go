package cookies

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"universe-server/internal/shared/config"
)

const AuthCookieName = "auth_token"

// Policy holds the attributes of the auth cookie.
type Policy struct {
	Domain   string
	Secure   bool
	SameSite http.SameSite
	MaxAge   time.Duration
}

func NewPolicy(auth config.AuthConfig, frontend config.FrontendConfig) Policy {
	return Policy{
		Domain:   extractDomain(frontend.URL),
		Secure:   auth.CookieSecure,
		SameSite: parseSameSite(auth.CookieSameSite),
		MaxAge:   auth.TokenExpiration,
	}
}

func (p Policy) SetAuthCookie(w http.ResponseWriter, token string) {
	cookie := p.authCookie()
	cookie.Value = token
	cookie.MaxAge = int(p.MaxAge.Seconds())

	http.SetCookie(w, cookie)
}

func (p Policy) ClearAuthCookie(w http.ResponseWriter) {
	cookie := p.authCookie()
	cookie.Value = ""
	cookie.MaxAge = -1

	http.SetCookie(w, cookie)
}

func (p Policy) authCookie() *http.Cookie {
	return &http.Cookie{
		Name:     AuthCookieName,
		Path:     "/",
		Domain:   p.Domain,
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: p.SameSite,
	}
}

// extractDomain leaves the domain empty for local frontends so browsers
// scope the cookie to the host.
func extractDomain(frontendURL string) string {
	parsedURL, err := url.Parse(frontendURL)
	if err != nil || parsedURL.Host == "" {
		return ""
	}

	host := parsedURL.Hostname()
	if host == "localhost" || host == "127.0.0.1" {
		return ""
	}

	return host
}

func parseSameSite(sameSite string) http.SameSite {
	switch strings.ToLower(sameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}
