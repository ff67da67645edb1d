// Package oauth реализует вход через Google OAuth 2.0: формирование
// ссылки авторизации, обмен кода на access-токен и получение профиля
// пользователя. Базовые URL переопределяются в тестах.
package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avoronkov/device-gate/internal/config"
)

const (
	googleTokenURL    = "https://oauth2.googleapis.com/token"
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	googleAuthBaseURL = "https://accounts.google.com/o/oauth2/v2/auth"
)

// Profile нормализованный профиль пользователя Google.
type Profile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"verified_email"`
}

// GoogleProvider выполняет OAuth-обмен с Google. Exchange делает два
// последовательных HTTP-вызова: обмен кода на токен и запрос профиля.
type GoogleProvider struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
	redirectURL  string

	// Переопределяются в тестах.
	TokenURL    string
	UserInfoURL string
	AuthBaseURL string
}

// NewGoogleProvider создаёт провайдер по настройкам из конфига.
func NewGoogleProvider(cfg config.GoogleOAuth) *GoogleProvider {
	return &GoogleProvider{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURL:  cfg.RedirectURL,
		TokenURL:     googleTokenURL,
		UserInfoURL:  googleUserInfoURL,
		AuthBaseURL:  googleAuthBaseURL,
	}
}

// AuthURL возвращает ссылку для перенаправления пользователя на страницу
// согласия Google. state прокидывается обратно в callback.
func (p *GoogleProvider) AuthURL(state string) string {
	q := url.Values{}
	q.Set("client_id", p.clientID)
	q.Set("redirect_uri", p.redirectURL)
	q.Set("response_type", "code")
	q.Set("scope", "openid email profile")
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	if state != "" {
		q.Set("state", state)
	}
	return p.AuthBaseURL + "?" + q.Encode()
}

// Exchange меняет код авторизации на access-токен и запрашивает профиль.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	const op = "oauth.Exchange"

	form := url.Values{}
	form.Set("code", code)
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("redirect_uri", p.redirectURL)
	form.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s: token endpoint returned %d: %s", op, resp.StatusCode, body)
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("%s: empty access token", op)
	}

	return p.fetchProfile(ctx, tokenResp.AccessToken)
}

func (p *GoogleProvider) fetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	const op = "oauth.fetchProfile"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s: userinfo endpoint returned %d: %s", op, resp.StatusCode, body)
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("%s: profile has no email", op)
	}
	return &profile, nil
}
