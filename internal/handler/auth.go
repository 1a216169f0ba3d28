package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/pulsecheck/internal/auth"
	"github.com/sakif/pulsecheck/internal/model"
	"github.com/sakif/pulsecheck/internal/service"
)

const stateCookieName = "oauth_state"

// SessionCookies writes and clears the session cookie.
//
// The cookie is:
//   - HttpOnly: JavaScript cannot read it (XSS protection)
//   - SameSite=Lax: sent on top-level navigations, not on cross-site POSTs
//   - Secure when PULSECHECK_COOKIE_SECURE is set (HTTPS deployments)
type SessionCookies struct {
	Secure bool
	TTL    time.Duration
}

func (c SessionCookies) set(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(c.TTL.Seconds()),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c SessionCookies) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// AuthHandler covers signup, password login, GitHub login, logout and the
// password reset flow.
//
// HANDLER RESPONSIBILITIES:
//   - HandleSignup         → create an account, optionally enrolling it
//   - HandleLogin          → verify email/password, issue the session cookie
//   - HandleGitHubLogin    → redirect the browser to GitHub's authorization page
//   - HandleGitHubCallback → receive the code, sign the user in, issue the cookie
//   - HandleLogout         → clear the session cookie
//   - HandleForgotPassword / HandleResetPassword → reset token flow
type AuthHandler struct {
	auth    *service.AuthService
	users   *service.UserService
	github  *auth.GitHubProvider // nil when GitHub sign-in is not configured
	cookies SessionCookies
	logger  *slog.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	users *service.UserService,
	github *auth.GitHubProvider,
	cookies SessionCookies,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:    authService,
		users:   users,
		github:  github,
		cookies: cookies,
		logger:  logger,
	}
}

type signupRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=8,max=72"`
	CourseID string  `json:"courseId"`
	PassKey  *string `json:"passKey"`
}

// signupResponse reports an enrollment failure next to the new account: the
// account is created either way.
type signupResponse struct {
	User            *model.User       `json:"user"`
	Enrollment      *model.Enrollment `json:"enrollment,omitempty"`
	EnrollmentError *ErrorResponse    `json:"enrollmentError,omitempty"`
}

// HandleSignup creates an account and signs it in.
//
// HTTP: POST /auth/signup
// REQUEST BODY: {"name":"Sam","email":"sam@example.com","password":"...","courseId":"...","passKey":"AB12"}
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.Signup(r.Context(), service.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		CourseID: req.CourseID,
		PassKey:  req.PassKey,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.cookies.set(w, res.Token)
	body := signupResponse{User: res.User, Enrollment: res.Enrollment}
	if res.EnrollmentError != nil {
		_, e := errorBody(res.EnrollmentError)
		body.EnrollmentError = &e
	}
	writeJSON(w, http.StatusCreated, body)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin verifies credentials and sets the session cookie.
//
// HTTP: POST /auth/login
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.cookies.set(w, res.Token)
	writeJSON(w, http.StatusOK, map[string]any{"user": res.User})
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /auth/logout
//
// Sessions are stateless JWTs, so logging out only removes the cookie. The
// token stays valid until it expires, but the browser no longer sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.cookies.clear(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleGitHubLogin redirects the user to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state value goes into a short-lived cookie and into the
// authorization URL. HandleGitHubCallback only proceeds when both match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth login flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Find, link or create the local account
//  4. Set the session cookie and redirect to the app
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	// --- Step 1: Validate CSRF state ---
	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" {
		h.logger.Warn("auth callback: missing state cookie")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}
	if r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	// The state cookie is single-use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	// --- Step 2: Exchange code for GitHub profile ---
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}
	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	// --- Step 3: Sign in ---
	res, err := h.auth.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		status, body := errorBody(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("auth callback: sign-in failed",
				slog.Int64("githubID", ghUser.ID),
				slog.String("error", err.Error()),
			)
			body.Message = "authentication failed"
		}
		http.Error(w, body.Message, status)
		return
	}

	// --- Step 4: Issue cookie and redirect ---
	h.cookies.set(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

// HandleForgotPassword starts the reset flow. It answers 200 whether or not
// the email belongs to an account.
//
// HTTP: POST /auth/password/forgot
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.users.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "if that email is registered, a reset link has been sent",
	})
}

type resetPasswordRequest struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// HandleResetPassword sets a new password from a reset token.
//
// HTTP: POST /auth/password/reset
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if err := h.users.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
