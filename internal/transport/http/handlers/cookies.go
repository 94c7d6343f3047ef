package handlers

import (
	"net/http"
	"time"

	"github.com/pribylovaa/go-advanced-auth/internal/models"
)

// Имена cookie с токенами.
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// Cookies — параметры cookie с токенами.
// Cookie всегда HttpOnly и SameSite=Lax; Secure и Domain задаются конфигом,
// MaxAge совпадает со сроком жизни токена.
type Cookies struct {
	Secure     bool
	Domain     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// SetPair выставляет обе cookie из пары токенов.
func (c Cookies) SetPair(w http.ResponseWriter, pair *models.TokenPair) {
	http.SetCookie(w, c.cookie(AccessCookie, pair.AccessToken, c.AccessTTL))
	http.SetCookie(w, c.cookie(RefreshCookie, pair.RefreshToken, c.RefreshTTL))
}

// Clear удаляет обе cookie.
func (c Cookies) Clear(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		ck := c.cookie(name, "", 0)
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		http.SetCookie(w, ck)
	}
}

func (c Cookies) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func cookieValue(r *http.Request, name string) string {
	ck, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return ck.Value
}
