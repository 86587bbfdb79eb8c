package linebot

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"nesugoshipanic/internal/service"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const lineTokenEndpoint = "https://api.line.me/oauth2/v2.1/token"

// LoginHandler completes the LINE Login flow: it exchanges the authorization
// code for an id_token, pulls the email and user ID out of it, stores the
// email and issues the user's game ID.
type LoginHandler struct {
	cfg    Config
	game   *service.GameService
	client *http.Client
	logger zerolog.Logger
}

// NewLoginHandler creates the login callback handler.
func NewLoginHandler(cfg Config, game *service.GameService, logger zerolog.Logger) *LoginHandler {
	return &LoginHandler{
		cfg:    cfg,
		game:   game,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger.With().Str("component", "LoginHandler").Logger(),
	}
}

// ServeHTTP handles GET /line-login-callback
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		writePage(w, http.StatusBadRequest, "認証エラー", "認証コードがありません。もう一度お試しください。")
		return
	}
	if h.cfg.LoginChannelID == "" || h.cfg.LoginChannelSecret == "" || h.cfg.LoginRedirectURL == "" {
		h.logger.Error().Msg("LINE Login is not configured")
		writePage(w, http.StatusInternalServerError, "設定エラー", "LINEログインの設定が不足しています。管理者にご連絡ください。")
		return
	}

	idToken, err := h.exchangeCode(code)
	if err != nil {
		h.logger.Error().Err(err).Msg("token exchange failed")
		writePage(w, http.StatusBadGateway, "認証エラー", "認証に失敗しました。もう一度お試しください。")
		return
	}

	email, lineUserID, err := decodeIDToken(idToken)
	if err != nil {
		h.logger.Error().Err(err).Msg("id_token decode failed")
		writePage(w, http.StatusBadRequest, "認証エラー", "認証情報の読み取りに失敗しました。")
		return
	}
	if lineUserID == "" {
		writePage(w, http.StatusBadRequest, "認証エラー", "ユーザー情報が取得できませんでした。")
		return
	}
	if email == "" {
		// Email consent was not granted; the game URL has nowhere to go.
		writePage(w, http.StatusBadRequest, "メールアドレス未登録",
			"LINEアカウントにメールアドレスが登録されていないため、IDを発行できません。メールアドレスを登録してから、もう一度お試しください。")
		return
	}

	session, err := h.game.IssueForLogin(r.Context(), lineUserID, email)
	if err != nil {
		h.logger.Error().Err(err).Str("lineUserId", lineUserID).Msg("issuance failed")
		writePage(w, http.StatusInternalServerError, "エラー", "ID発行中にエラーが発生しました。もう一度お試しください。")
		return
	}

	writePage(w, http.StatusOK, "認証完了",
		fmt.Sprintf("あなた専用のゲームID「%s」を発行しました。ゲームURLをメールでお送りしましたので、ご確認ください。このページは閉じて構いません。", session.GameID))
}

// exchangeCode trades the authorization code for the id_token.
func (h *LoginHandler) exchangeCode(code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", h.cfg.LoginRedirectURL)
	form.Set("client_id", h.cfg.LoginChannelID)
	form.Set("client_secret", h.cfg.LoginChannelSecret)

	resp, err := h.client.PostForm(lineTokenEndpoint, form)
	if err != nil {
		return "", fmt.Errorf("failed to call token endpoint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var body struct {
		IDToken string `json:"id_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if body.IDToken == "" {
		return "", fmt.Errorf("token response carried no id_token")
	}
	return body.IDToken, nil
}

// decodeIDToken reads email and sub out of the id_token. The token arrived
// over TLS straight from LINE's token endpoint, so the claims are trusted
// without a local signature check, same as the original deployment.
func decodeIDToken(idToken string) (email, sub string, err error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return "", "", err
	}
	email, _ = claims["email"].(string)
	sub, _ = claims["sub"].(string)
	return email, sub, nil
}

func writePage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, loginPageHTML, title, title, message)
}

const loginPageHTML = `<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>%s</title>
<style>
body { font-family: 'Hiragino Sans', 'Meiryo', sans-serif; background: #f5f5f5; margin: 0; padding: 40px 16px; }
.card { max-width: 420px; margin: 0 auto; background: #fff; border-radius: 12px; padding: 32px 24px; text-align: center; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
h1 { color: #1DB446; font-size: 1.4rem; }
p { color: #333; }
</style>
</head>
<body>
<div class="card">
<h1>%s</h1>
<p>%s</p>
</div>
</body>
</html>
`
