package web

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	log "github.com/go-pkgz/lgr"
	"golang.org/x/crypto/bcrypt"
)

const (
	authCookie = "jobord-auth"
	authUser   = "jobord"
)

// handleLoginForm displays the login form
func (s *Server) handleLoginForm(w http.ResponseWriter, _ *http.Request) {
	s.render(w, http.StatusOK, "login", s.loginData(""))
}

// handleLogin checks the password against bcrypt hash and sets auth cookie
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	password := r.FormValue("password")
	if password == "" {
		s.render(w, http.StatusUnauthorized, "login", s.loginData("Password is required"))
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		log.Printf("[WARN] failed login attempt from %s", r.RemoteAddr)
		s.render(w, http.StatusUnauthorized, "login", s.loginData("Invalid password"))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    s.authToken(),
		Path:     s.cookiePath(),
		MaxAge:   7 * 24 * 60 * 60, // 7 days
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	})
	http.Redirect(w, r, s.url("/"), http.StatusSeeOther)
}

// handleLogout clears the auth cookie and redirects to login page
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    "",
		Path:     s.cookiePath(),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
	})
	http.Redirect(w, r, s.url("/login"), http.StatusSeeOther)
}

func (s *Server) loginData(errMsg string) any {
	return struct {
		Error    string
		Hostname string
	}{Error: errMsg, Hostname: s.hostname}
}

// authMiddleware checks for auth cookie or falls back to basic auth
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			next.ServeHTTP(w, r)
			return
		}

		if cookie, err := r.Cookie(authCookie); err == nil && s.validAuthToken(cookie.Value) {
			next.ServeHTTP(w, r)
			return
		}

		// basic auth for API clients and metrics scrapers
		if username, password, ok := r.BasicAuth(); ok && username == authUser {
			if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err == nil {
				next.ServeHTTP(w, r)
				return
			}
		}

		if !strings.HasPrefix(r.URL.Path, "/api/") && !strings.HasPrefix(r.URL.Path, "/metrics") &&
			(r.Header.Get("Accept") == "" || strings.Contains(r.Header.Get("Accept"), "text/html")) {
			http.Redirect(w, r, s.url("/login"), http.StatusSeeOther)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="jobord"`)
		s.writeJSONError(w, http.StatusUnauthorized, "unauthorized")
	})
}

// authToken derives the session token from the password hash, changing the hash invalidates sessions
func (s *Server) authToken() string {
	h := sha256.Sum256([]byte(s.passwordHash + authCookie))
	return hex.EncodeToString(h[:])
}

func (s *Server) validAuthToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken())) == 1
}
