package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coinkrazygaming/coinkrazy2-sub002/config"
	"github.com/coinkrazygaming/coinkrazy2-sub002/handlers"
	"github.com/coinkrazygaming/coinkrazy2-sub002/middleware"
	"github.com/coinkrazygaming/coinkrazy2-sub002/models"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services/audit"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services/credentials"
	"github.com/coinkrazygaming/coinkrazy2-sub002/services/session"
	"github.com/coinkrazygaming/coinkrazy2-sub002/utils"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const (
	// StateCookieName binds an OAuth callback to the browser that started it
	StateCookieName = "oauth_state"

	stateCookiePath = "/api/auth/oauth"
)

// PasswordVerifier checks and creates local accounts
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, identifier, secret string) (*models.User, error)
	Register(ctx context.Context, input credentials.RegisterInput) (*models.User, error)
}

// SessionBridge carries OAuth sign-ins across the provider redirect
type SessionBridge interface {
	Begin(ctx context.Context, provider string, opts ...session.BeginOption) (*models.Handshake, error)
	Complete(ctx context.Context, key string, result models.ProviderResult) (*models.User, error)
	TTL() time.Duration
}

// TokenIssuer signs principals into bearer tokens
type TokenIssuer interface {
	Issue(p *models.Principal, ttl time.Duration) (string, error)
}

// AuditRecorder records authentication events
type AuditRecorder interface {
	LogLogin(user *models.User, meta audit.RequestMeta) error
	LogLoginFailed(identifier string, meta audit.RequestMeta) error
	LogRegistered(user *models.User, meta audit.RequestMeta) error
	LogOAuthSignIn(user *models.User, provider string, meta audit.RequestMeta) error
	LogOAuthRejected(provider, reason string, meta audit.RequestMeta) error
	LogLogout(principal *models.Principal, meta audit.RequestMeta) error
}

// Handler serves local and third-party sign-in
type Handler struct {
	cfg       *config.Config
	passwords PasswordVerifier
	bridge    SessionBridge
	providers *Registry
	tokens    TokenIssuer
	auditor   AuditRecorder
	logger    *zap.Logger
}

// NewHandler creates a new auth handler
func NewHandler(
	cfg *config.Config,
	passwords PasswordVerifier,
	bridge SessionBridge,
	providers *Registry,
	tokens TokenIssuer,
	auditor AuditRecorder,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		cfg:       cfg,
		passwords: passwords,
		bridge:    bridge,
		providers: providers,
		tokens:    tokens,
		auditor:   auditor,
		logger:    logger,
	}
}

// RegisterRequest creates a local account
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=32,username"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// LoginRequest accepts the account as identifier, username or email
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"omitempty,max=255"`
	Username   string `json:"username" validate:"omitempty,max=255"`
	Email      string `json:"email" validate:"omitempty,max=255"`
	Password   string `json:"password" validate:"required,max=72"`
}

func (r LoginRequest) identifier() string {
	for _, v := range []string{r.Identifier, r.Username, r.Email} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// AuthResponse is returned by register and login
type AuthResponse struct {
	Token string            `json:"token"`
	User  *models.Principal `json:"user"`
}

// HandleRegister handles POST /api/auth/register
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) error {
	var req RegisterRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		return err
	}

	user, err := h.passwords.Register(r.Context(), credentials.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	token, err := h.issue(w, user)
	if err != nil {
		return err
	}
	h.record(h.auditor.LogRegistered(user, handlers.RequestMeta(r)))

	return utils.WriteCreated(w, AuthResponse{Token: token, User: user.Principal()})
}

// HandleLogin handles POST /api/auth/login.
// Unknown accounts and wrong passwords get the same response.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) error {
	var req LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		return err
	}

	identifier := req.identifier()
	if identifier == "" {
		return &utils.ValidationError{
			Message: "Validation failed",
			Fields:  map[string]string{"identifier": "identifier, username or email is required"},
		}
	}

	user, err := h.passwords.VerifyPassword(r.Context(), identifier, req.Password)
	if err != nil {
		if services.IsCredentialError(err) {
			h.record(h.auditor.LogLoginFailed(identifier, handlers.RequestMeta(r)))
			return services.ErrBadCredentials
		}
		return err
	}

	token, err := h.issue(w, user)
	if err != nil {
		return err
	}
	h.record(h.auditor.LogLogin(user, handlers.RequestMeta(r)))

	return utils.WriteOK(w, AuthResponse{Token: token, User: user.Principal()})
}

// HandleLogout handles POST /api/auth/logout. Tokens are stateless, so this
// only clears the browser cookie.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) error {
	h.clearCookie(w, middleware.AuthTokenCookie, "/")
	h.record(h.auditor.LogLogout(middleware.GetPrincipalFromContext(r.Context()), handlers.RequestMeta(r)))

	return utils.WriteOK(w, map[string]string{"message": "Logged out"})
}

// HandleMe handles GET /api/auth/me
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) error {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		return services.ErrUnauthenticated
	}
	return utils.WriteOK(w, map[string]interface{}{"user": principal})
}

// HandleOAuthBegin handles GET /api/auth/oauth/{provider}. A signed-in caller
// links the provider account to their user instead of signing in.
func (h *Handler) HandleOAuthBegin(w http.ResponseWriter, r *http.Request) error {
	provider, err := h.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		return err
	}

	var opts []session.BeginOption
	if principal := middleware.GetPrincipalFromContext(r.Context()); principal != nil {
		opts = append(opts, session.WithLinkUser(principal.ID))
	}

	handshake, err := h.bridge.Begin(r.Context(), provider.Name(), opts...)
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookieName,
		Value:    handshake.Key + "." + h.sign(handshake.Key),
		Path:     stateCookiePath,
		MaxAge:   int(h.bridge.TTL().Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthCodeURL(handshake.Key, handshake.Nonce), http.StatusFound)
	return nil
}

// HandleOAuthCallback handles GET /api/auth/oauth/{provider}/callback
func (h *Handler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	meta := handlers.RequestMeta(r)

	provider, err := h.providers.Get(chi.URLParam(r, "provider"))
	if err != nil {
		return err
	}

	query := r.URL.Query()
	state := query.Get("state")
	validState := h.checkStateCookie(r, state)
	h.clearCookie(w, StateCookieName, stateCookiePath)

	if providerErr := query.Get("error"); providerErr != "" {
		h.record(h.auditor.LogOAuthRejected(provider.Name(), "provider_"+providerErr, meta))
		return services.NewDomainError(services.ErrorTypeUnauthenticated, "sign-in was cancelled at the provider", nil)
	}
	if !validState {
		h.record(h.auditor.LogOAuthRejected(provider.Name(), "state_mismatch", meta))
		return services.ErrUnknownSession
	}

	code := query.Get("code")
	if code == "" {
		return services.NewDomainError(services.ErrorTypeValidation, "missing authorization code", nil)
	}

	result, err := provider.Exchange(ctx, code)
	if err != nil {
		h.logger.Warn("provider code exchange failed",
			zap.String("provider", provider.Name()),
			zap.String("request_id", meta.RequestID),
			zap.Error(err))
		h.record(h.auditor.LogOAuthRejected(provider.Name(), "exchange_failed", meta))
		return services.WrapError(services.ErrorTypeUnauthenticated, "provider sign-in failed", err)
	}

	user, err := h.bridge.Complete(ctx, state, *result)
	if err != nil {
		if reason := services.GetErrorType(err); reason != "" && reason != services.ErrorTypeInternal {
			h.record(h.auditor.LogOAuthRejected(provider.Name(), string(reason), meta))
		}
		return err
	}

	token, err := h.issue(w, user)
	if err != nil {
		return err
	}
	h.record(h.auditor.LogOAuthSignIn(user, provider.Name(), meta))

	http.Redirect(w, r, h.frontEndCallback(token), http.StatusFound)
	return nil
}

// issue signs a token for user and sets the auth cookie
func (h *Handler) issue(w http.ResponseWriter, user *models.User) (string, error) {
	token, err := h.tokens.Issue(user.Principal(), h.cfg.Auth.TokenTTL)
	if err != nil {
		return "", services.WrapInternal("failed to issue token", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.AuthTokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cfg.Cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

func (h *Handler) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sign returns the HMAC of key under the session secret
func (h *Handler) sign(key string) string {
	mac := hmac.New(sha256.New, []byte(h.cfg.Session.Secret))
	mac.Write([]byte(key))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// checkStateCookie reports whether the state cookie was issued for state
func (h *Handler) checkStateCookie(r *http.Request, state string) bool {
	if state == "" {
		return false
	}
	cookie, err := r.Cookie(StateCookieName)
	if err != nil {
		return false
	}

	key, sig, ok := strings.Cut(cookie.Value, ".")
	if !ok || !hmac.Equal([]byte(key), []byte(state)) {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(h.sign(key)))
}

// frontEndCallback returns the post-login redirect with the token in the fragment
func (h *Handler) frontEndCallback(token string) string {
	base := strings.TrimSuffix(h.cfg.OAuth.FrontEndURL, "/")
	return base + "/auth/callback#" + url.Values{"token": {token}}.Encode()
}

func (h *Handler) record(err error) {
	if err != nil {
		h.logger.Warn("failed to queue audit event", zap.Error(err))
	}
}
