package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"discussion-companion-be/internal/config"
	"discussion-companion-be/internal/dto"
	"discussion-companion-be/internal/pkg/apperror"
	"discussion-companion-be/internal/pkg/logger"

	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	oauthModule = "OAuth"

	providerGoogle     = "google"
	googleUserInfoURL  = "https://www.googleapis.com/oauth2/v2/userinfo"
	oauthStateLifetime = 10 * time.Minute
)

type IOAuthService interface {
	GetLoginURL(provider string) (string, error)
	// HandleCallback trades the provider's code for a session. state must be
	// one this service handed out and is consumed by the call.
	HandleCallback(ctx context.Context, provider, code, state string) (*dto.AuthResponse, error)
}

type oauthService struct {
	auth        IAuthService
	googleConf  *oauth2.Config
	userInfoURL string
	logger      logger.ILogger

	states *cache.Cache
}

func NewOAuthService(cfg config.OAuthConfig, auth IAuthService, log logger.ILogger) IOAuthService {
	var conf *oauth2.Config
	if cfg.GoogleEnabled() {
		conf = &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		}
	}
	return newOAuthService(conf, googleUserInfoURL, auth, log)
}

func newOAuthService(conf *oauth2.Config, userInfoURL string, auth IAuthService, log logger.ILogger) *oauthService {
	return &oauthService{
		auth:        auth,
		googleConf:  conf,
		userInfoURL: userInfoURL,
		logger:      log,
		states:      cache.New(oauthStateLifetime, time.Minute),
	}
}

func (s *oauthService) provider(name string) (*oauth2.Config, error) {
	if name != providerGoogle || s.googleConf == nil {
		return nil, apperror.NewCredentialError(apperror.CodeOperationNotAllowed)
	}
	return s.googleConf, nil
}

func (s *oauthService) GetLoginURL(provider string) (string, error) {
	conf, err := s.provider(provider)
	if err != nil {
		return "", err
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.RawURLEncoding.EncodeToString(b)
	s.states.SetDefault(state, provider)

	return conf.AuthCodeURL(state), nil
}

type googleUser struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

func (s *oauthService) HandleCallback(ctx context.Context, provider, code, state string) (*dto.AuthResponse, error) {
	conf, err := s.provider(provider)
	if err != nil {
		return nil, err
	}

	issuedFor, ok := s.states.Get(state)
	if state == "" || !ok || issuedFor != provider {
		s.logger.Warn(oauthModule, "Callback with unknown state", map[string]interface{}{"provider": provider})
		return nil, apperror.NewCredentialError(apperror.CodeInvalidCredential)
	}
	s.states.Delete(state)

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn(oauthModule, "Code exchange failed", map[string]interface{}{"provider": provider, "error": err.Error()})
		return nil, &apperror.CredentialError{Code: apperror.CodeInvalidCredential, Err: err}
	}

	user, err := s.fetchUser(ctx, conf, token)
	if err != nil {
		s.logger.Error(oauthModule, "Failed getting user info", map[string]interface{}{"provider": provider, "error": err.Error()})
		return nil, err
	}
	if !user.VerifiedEmail {
		return nil, apperror.NewCredentialError(apperror.CodeInvalidCredential)
	}

	res, err := s.auth.SignInWithProvider(ctx, user.Email)
	if err != nil {
		return nil, err
	}
	s.logger.Info(oauthModule, "User signed in", map[string]interface{}{"provider": provider, "user_id": res.User.Id.String()})
	return res, nil
}

func (s *oauthService) fetchUser(ctx context.Context, conf *oauth2.Config, token *oauth2.Token) (*googleUser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := conf.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info: status %d", resp.StatusCode)
	}

	var user googleUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("user info: %w", err)
	}
	return &user, nil
}
