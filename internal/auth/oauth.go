package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/wolfman30/wellness-crm/internal/apperr"
	"github.com/wolfman30/wellness-crm/pkg/logging"
)

// OAuthState round-trips through the provider in the state parameter.
type OAuthState struct {
	RedirectURI string `json:"redirectUri,omitempty"`
	ReturnTo    string `json:"returnTo,omitempty"`
}

// EncodeState renders s as base64 JSON.
func EncodeState(s OAuthState) string {
	raw, _ := json.Marshal(s)
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeState accepts base64 JSON, or the legacy form where the decoded
// string is the bare redirect URI.
func DecodeState(state string) OAuthState {
	decoded, err := base64.StdEncoding.DecodeString(state)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(state, "="))
		if err != nil {
			return OAuthState{}
		}
	}
	if len(decoded) == 0 {
		return OAuthState{}
	}
	var parsed OAuthState
	if err := json.Unmarshal(decoded, &parsed); err == nil {
		return parsed
	}
	return OAuthState{RedirectURI: string(decoded)}
}

// SanitizeReturnTo allows only same-origin relative paths outside /api/.
// An empty result means "use /".
func SanitizeReturnTo(returnTo string) string {
	if !strings.HasPrefix(returnTo, "/") {
		return ""
	}
	if strings.HasPrefix(returnTo, "//") || strings.HasPrefix(returnTo, `/\`) {
		return ""
	}
	if strings.HasPrefix(returnTo, "/api/") {
		return ""
	}
	return returnTo
}

// UserInfo is the provider's profile response.
type UserInfo struct {
	OpenID      string `json:"openId"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	LoginMethod string `json:"loginMethod"`
	Platform    string `json:"platform"`
}

// OAuthConfig configures OAuthHandler.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	RedirectURL  string
	OwnerOpenID  string
}

// OAuthHandler serves the login, callback, me and logout endpoints.
type OAuthHandler struct {
	oauth       *oauth2.Config
	userInfoURL string
	ownerOpenID string
	users       Store
	sessions    *SessionManager
	auth        *Authenticator
	logger      *logging.Logger
}

func NewOAuthHandler(cfg OAuthConfig, users Store, sessions *SessionManager, logger *logging.Logger) *OAuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &OAuthHandler{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		userInfoURL: cfg.UserInfoURL,
		ownerOpenID: cfg.OwnerOpenID,
		users:       users,
		sessions:    sessions,
		auth:        NewAuthenticator(sessions, users),
		logger:      logger,
	}
}

// Login handles GET /api/oauth/login?returnTo=/path.
func (h *OAuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if h.oauth.Endpoint.AuthURL == "" {
		apperr.Write(w, apperr.New(apperr.KindUpstream, "sign-in is not configured"), "sign-in is not configured")
		return
	}
	state := EncodeState(OAuthState{
		RedirectURI: h.oauth.RedirectURL,
		ReturnTo:    SanitizeReturnTo(r.URL.Query().Get("returnTo")),
	})
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusFound)
}

// Callback handles GET /api/oauth/callback?code&state.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	rawState := r.URL.Query().Get("state")
	if code == "" || rawState == "" {
		apperr.Write(w, apperr.Validation("code and state are required"), "")
		return
	}
	state := DecodeState(rawState)

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	info, err := h.exchange(ctx, code, state)
	if err != nil {
		h.logger.Error("oauth callback failed", "error", err)
		apperr.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "OAuth callback failed"})
		return
	}
	if info.OpenID == "" {
		apperr.Write(w, apperr.Validation("openId missing from user info"), "")
		return
	}

	upsert := UpsertUser{
		OpenID:       info.OpenID,
		Name:         nonEmpty(info.Name),
		Email:        nonEmpty(info.Email),
		LoginMethod:  nonEmpty(firstNonEmpty(info.LoginMethod, info.Platform)),
		LastSignedIn: time.Now().UTC(),
	}
	if h.ownerOpenID != "" && info.OpenID == h.ownerOpenID {
		admin := RoleAdmin
		upsert.Role = &admin
	}
	if _, err := h.users.Upsert(ctx, upsert); err != nil {
		h.logger.Error("oauth user upsert failed", "error", err, "open_id", info.OpenID)
		apperr.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "OAuth callback failed"})
		return
	}

	token, err := h.sessions.Issue(info.OpenID, info.Name)
	if err != nil {
		h.logger.Error("session issue failed", "error", err)
		apperr.WriteJSON(w, http.StatusInternalServerError, map[string]string{"error": "OAuth callback failed"})
		return
	}
	h.sessions.SetCookie(w, r, token)

	target := SanitizeReturnTo(state.ReturnTo)
	if target == "" {
		target = "/"
	}
	h.logger.Info("operator signed in", "open_id", info.OpenID)
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *OAuthHandler) exchange(ctx context.Context, code string, state OAuthState) (*UserInfo, error) {
	var opts []oauth2.AuthCodeOption
	if state.RedirectURI != "" {
		opts = append(opts, oauth2.SetAuthURLParam("redirect_uri", state.RedirectURI))
	}
	tok, err := h.oauth.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, fmt.Errorf("auth: exchange code: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: build userinfo request: %w", err)
	}
	resp, err := h.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: userinfo request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("auth: userinfo status %d", resp.StatusCode)
	}
	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("auth: decode userinfo: %w", err)
	}
	return &info, nil
}

// Me handles GET /api/auth/me. Anonymous callers get null.
func (h *OAuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	u, err := h.auth.Authenticate(r)
	if err != nil {
		if !errors.Is(err, ErrNoSession) && !errors.Is(err, ErrInvalidSession) {
			h.logger.Warn("session lookup failed", "error", err)
		}
		apperr.WriteJSON(w, http.StatusOK, nil)
		return
	}
	apperr.WriteJSON(w, http.StatusOK, u)
}

// Logout handles POST /api/auth/logout.
func (h *OAuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.ClearCookie(w, r)
	apperr.WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
