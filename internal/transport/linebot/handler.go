// Package linebot is the LINE-facing transport: webhook dispatch, the login
// callback and outbound push messages.
package linebot

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"nesugoshipanic/internal/cache"
	"nesugoshipanic/internal/service"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/rs/zerolog"
)

// Config carries the LINE channel settings the transport needs.
type Config struct {
	ChannelSecret      string
	LoginChannelID     string
	LoginChannelSecret string
	LoginRedirectURL   string
	Stage3GameURL      string
}

// Handler processes inbound webhook events and maps them onto state-machine
// operations.
type Handler struct {
	cfg    Config
	bot    *messaging_api.MessagingApiAPI
	game   *service.GameService
	dedup  cache.DedupCache
	logger zerolog.Logger
}

// NewHandler creates the webhook handler.
func NewHandler(cfg Config, bot *messaging_api.MessagingApiAPI, game *service.GameService, dedup cache.DedupCache, logger zerolog.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		bot:    bot,
		game:   game,
		dedup:  dedup,
		logger: logger.With().Str("component", "WebhookHandler").Logger(),
	}
}

// ServeHTTP handles POST /webhook. Signature verification is done by the SDK
// parser; a bad signature is answered with 400 so LINE stops retrying.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cb, err := webhook.ParseRequest(h.cfg.ChannelSecret, r)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.logger.Warn().Msg("webhook signature verification failed")
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		h.logger.Error().Err(err).Msg("webhook parse failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	for _, event := range cb.Events {
		if err := h.handleEvent(r.Context(), event); err != nil {
			// One failing event must not block the rest of the batch.
			h.logger.Error().Err(err).Msg("event handling failed")
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleEvent(ctx context.Context, event webhook.EventInterface) error {
	switch e := event.(type) {
	case webhook.PostbackEvent:
		if h.seenBefore(ctx, e.WebhookEventId) {
			return nil
		}
		return h.handlePostback(ctx, e.ReplyToken, sourceUserID(e.Source), e.Postback.Data)
	case webhook.MessageEvent:
		if h.seenBefore(ctx, e.WebhookEventId) {
			return nil
		}
		if text, ok := e.Message.(webhook.TextMessageContent); ok {
			return h.handleText(ctx, e.ReplyToken, sourceUserID(e.Source), text.Text)
		}
	}
	return nil
}

// seenBefore drops redelivered events. A dedup backend failure fails open:
// better a rare duplicate reply than a dead webhook.
func (h *Handler) seenBefore(ctx context.Context, eventID string) bool {
	if eventID == "" {
		return false
	}
	first, err := h.dedup.MarkSeen(ctx, eventID)
	if err != nil {
		h.logger.Warn().Err(err).Msg("webhook dedup unavailable")
		return false
	}
	if !first {
		h.logger.Info().Str("webhookEventId", eventID).Msg("skipping redelivered event")
	}
	return !first
}

func (h *Handler) handlePostback(ctx context.Context, replyToken, userID, data string) error {
	switch data {
	case postbackGenerateID:
		return h.replyLoginPrompt(replyToken)
	case postbackCheckScore:
		return h.reply(replyToken, textMessage(checkScoreText))
	case postbackShowRanking:
		return h.replyRanking(ctx, replyToken)
	}
	return nil
}

func (h *Handler) handleText(ctx context.Context, replyToken, userID, text string) error {
	intent, character := ClassifyText(text)
	switch intent {
	case IntentCharacter:
		return h.reply(replyToken, textMessage(characters[character]))
	case IntentGameHelp:
		return h.reply(replyToken, textMessage(gameHelpText))
	case IntentRanking:
		return h.replyRanking(ctx, replyToken)
	case IntentGenerateID:
		return h.replyLoginPrompt(replyToken)
	case IntentDebugStage3:
		return h.replyDebugStage3(ctx, replyToken, userID)
	default:
		return h.reply(replyToken, textMessage(helpText))
	}
}

// replyLoginPrompt points the user at the LINE Login consent flow; the
// callback endpoint does the actual issuance once an email is on record.
func (h *Handler) replyLoginPrompt(replyToken string) error {
	if h.cfg.LoginChannelID == "" || h.cfg.LoginRedirectURL == "" {
		return h.reply(replyToken, textMessage(loginMissingText))
	}
	return h.reply(replyToken, loginPromptMessage(h.authorizeURL()))
}

func (h *Handler) authorizeURL() string {
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", h.cfg.LoginChannelID)
	q.Set("redirect_uri", h.cfg.LoginRedirectURL)
	q.Set("state", "issue_id")
	q.Set("scope", "openid profile email")
	return "https://access.line.me/oauth2/v2.1/authorize?" + q.Encode()
}

func (h *Handler) replyRanking(ctx context.Context, replyToken string) error {
	entries, err := h.game.Leaderboard(ctx, 0)
	if errors.Is(err, service.ErrNoRankings) {
		return h.reply(replyToken, textMessage(noRankingText))
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("leaderboard query failed")
		return h.reply(replyToken, textMessage("ランキングの取得中にエラーが発生しました。"))
	}

	for i := range entries {
		entries[i].DisplayName = h.displayName(entries[i].LineUserID)
	}
	return h.reply(replyToken, rankingMessage(entries))
}

// displayName resolves a LINE profile name, falling back to a generic label
// when the profile is unavailable.
func (h *Handler) displayName(userID string) string {
	if userID == "" {
		return ""
	}
	profile, err := h.bot.GetProfile(userID)
	if err != nil {
		h.logger.Warn().Err(err).Str("lineUserId", userID).Msg("profile lookup failed")
		return ""
	}
	return profile.DisplayName
}

func (h *Handler) replyDebugStage3(ctx context.Context, replyToken, userID string) error {
	derived, mailed, err := h.game.DebugAdvanceStage3(ctx, userID)
	if errors.Is(err, service.ErrNotFound) {
		return h.reply(replyToken, textMessage("ゲームIDが見つかりません。メニューからIDを発行してください。"))
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("debug stage3 failed")
		return h.reply(replyToken, textMessage("STAGE3テスト設定中にエラーが発生しました。もう一度お試しください。"))
	}
	return h.reply(replyToken, debugStage3Messages(derived.GameID, mailed)...)
}

func (h *Handler) reply(replyToken string, messages ...messaging_api.MessageInterface) error {
	_, err := h.bot.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	return err
}

func sourceUserID(source webhook.SourceInterface) string {
	if user, ok := source.(webhook.UserSource); ok {
		return user.UserId
	}
	return ""
}
