// Package auth handles Huckleberry account authentication. The backend is
// Firebase: password sign-in via the Identity Toolkit REST API and token
// refresh via the Secure Token service. A TokenManager keeps the session
// fresh and persists it across restarts.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Session holds the authenticated Firebase session.
type Session struct {
	IDToken      string    `json:"id_token"`
	RefreshToken string    `json:"refresh_token"`
	LocalID      string    `json:"local_id"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Valid reports whether the session token is usable for at least another minute.
func (s Session) Valid() bool {
	return s.IDToken != "" && time.Until(s.ExpiresAt) > time.Minute
}

// APIError is an error response from the Firebase REST API.
type APIError struct {
	StatusCode int
	Code       string // textual error code, e.g. "INVALID_PASSWORD"
	Detail     string // response snippet when the payload was not parseable
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("auth: http %d: %s", e.StatusCode, e.Code)
	}
	if e.Detail != "" {
		return fmt.Sprintf("auth: http %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("auth: http %d", e.StatusCode)
}

// Authenticator performs raw REST calls against the Firebase auth endpoints.
type Authenticator struct {
	authBase  string
	tokenBase string
	apiKey    string
	client    *http.Client
	log       *slog.Logger
}

// NewAuthenticator creates an Authenticator for the given endpoints and API key.
func NewAuthenticator(authBase, tokenBase, apiKey string, log *slog.Logger) *Authenticator {
	return &Authenticator{
		authBase:  strings.TrimSuffix(authBase, "/"),
		tokenBase: strings.TrimSuffix(tokenBase, "/"),
		apiKey:    apiKey,
		client:    &http.Client{Timeout: 30 * time.Second},
		log:       log,
	}
}

type signInRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type signInResponse struct {
	LocalID      string `json:"localId"`
	Email        string `json:"email"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

// SignIn exchanges email/password for a session.
func (a *Authenticator) SignIn(ctx context.Context, email, password string) (Session, error) {
	body, err := json.Marshal(signInRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	})
	if err != nil {
		return Session{}, fmt.Errorf("auth: encode sign-in request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/accounts:signInWithPassword?key=%s", a.authBase, url.QueryEscape(a.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("auth: sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	a.log.Debug("signing in", "email", email)

	resp, err := a.client.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("auth: sign-in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Session{}, apiError(resp)
	}

	var out signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Session{}, fmt.Errorf("auth: decode sign-in response: %w", err)
	}

	a.log.Info("signed in", "email", out.Email, "user_uid", out.LocalID)
	return sessionFrom(out.IDToken, out.RefreshToken, out.LocalID, out.Email, out.ExpiresIn), nil
}

type refreshResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	ExpiresIn    string `json:"expires_in"`
}

// Refresh exchanges a refresh token for a fresh session.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	endpoint := fmt.Sprintf("%s/token?key=%s", a.tokenBase, url.QueryEscape(a.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Session{}, fmt.Errorf("auth: refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("auth: refresh: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Session{}, apiError(resp)
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Session{}, fmt.Errorf("auth: decode refresh response: %w", err)
	}

	a.log.Debug("session refreshed", "user_uid", out.UserID)
	return sessionFrom(out.IDToken, out.RefreshToken, out.UserID, "", out.ExpiresIn), nil
}

// apiError parses a Firebase error payload ({"error":{"code":400,"message":"..."}}).
// An unparseable body keeps a short snippet for diagnostics.
func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var payload struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: payload.Error.Message}
	}

	snippet := string(body)
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: snippet}
}

func sessionFrom(idToken, refreshToken, localID, email, expiresIn string) Session {
	ttl, err := strconv.Atoi(expiresIn)
	if err != nil || ttl <= 0 {
		ttl = 3600
	}
	return Session{
		IDToken:      idToken,
		RefreshToken: refreshToken,
		LocalID:      localID,
		Email:        email,
		ExpiresAt:    time.Now().Add(time.Duration(ttl) * time.Second),
	}
}

// --- TokenManager ---

// TokenManager hands out valid sessions, refreshing or re-authenticating as
// needed, and persists the session to disk so restarts skip the password flow.
type TokenManager struct {
	auth     *Authenticator
	email    string
	password string
	path     string // session file; empty disables persistence
	log      *slog.Logger

	mu      sync.Mutex
	session Session
}

// NewTokenManager creates a TokenManager. An existing session file at path is
// loaded best-effort.
func NewTokenManager(auth *Authenticator, email, password, path string, log *slog.Logger) *TokenManager {
	m := &TokenManager{
		auth:     auth,
		email:    email,
		password: password,
		path:     path,
		log:      log,
	}
	m.loadSession()
	return m
}

// Token returns a session valid for at least another minute. It refreshes an
// expiring session, falling back to password sign-in when the refresh token
// is rejected. Network failures propagate.
func (m *TokenManager) Token(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Valid() {
		return m.session, nil
	}

	if m.session.RefreshToken != "" {
		sess, err := m.auth.Refresh(ctx, m.session.RefreshToken)
		if err == nil {
			// Refresh responses carry no email; keep what we had.
			if sess.Email == "" {
				sess.Email = m.session.Email
			}
			m.setSession(sess)
			return m.session, nil
		}
		if !isVendorRejection(err) {
			return Session{}, err
		}
		m.log.Warn("refresh token rejected, signing in again", "error", err)
	}

	sess, err := m.auth.SignIn(ctx, m.email, m.password)
	if err != nil {
		return Session{}, err
	}
	m.setSession(sess)
	return m.session, nil
}

// UserUID returns the account uid of the current session, if any.
func (m *TokenManager) UserUID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.LocalID
}

func (m *TokenManager) setSession(sess Session) {
	m.session = sess
	m.persistSession()
}

func (m *TokenManager) loadSession() {
	if m.path == "" {
		return
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn("failed to read session file", "path", m.path, "error", err)
		}
		return
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		m.log.Warn("failed to parse session file", "path", m.path, "error", err)
		return
	}
	m.session = sess
	m.log.Debug("session loaded", "path", m.path, "user_uid", sess.LocalID)
}

func (m *TokenManager) persistSession() {
	if m.path == "" {
		return
	}
	data, err := json.MarshalIndent(m.session, "", "  ")
	if err != nil {
		m.log.Error("failed to encode session", "error", err)
		return
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		m.log.Error("failed to write session file", "path", m.path, "error", err)
	}
}

// isVendorRejection reports whether err is a vendor-side rejection (bad or
// expired token) rather than a transport failure.
func isVendorRejection(err error) bool {
	switch Classify(err) {
	case ClassUnreachable, ClassTimeout:
		return false
	}
	return true
}
