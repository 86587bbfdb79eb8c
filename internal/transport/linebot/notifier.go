package linebot

import (
	"context"

	"nesugoshipanic/internal/service"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/rs/zerolog"
)

// Notifier pushes stage-boundary messages to the owning user. It implements
// service.Notifier.
type Notifier struct {
	bot           *messaging_api.MessagingApiAPI
	stage3GameURL string
	logger        zerolog.Logger
}

// NewNotifier creates a new LINE push notifier.
func NewNotifier(bot *messaging_api.MessagingApiAPI, stage3GameURL string, logger zerolog.Logger) *Notifier {
	return &Notifier{
		bot:           bot,
		stage3GameURL: stage3GameURL,
		logger:        logger.With().Str("component", "Notifier").Logger(),
	}
}

// NotifyStage3Issued tells the user their stage-3 ID after stage 2 completes.
func (n *Notifier) NotifyStage3Issued(ctx context.Context, lineUserID, stage3ID string, subtotal int) error {
	return n.push(lineUserID, stage3IssuedMessages(stage3ID, subtotal, n.stage3GameURL))
}

// NotifyCompleted sends the final score summary once stage 3 completes.
func (n *Notifier) NotifyCompleted(ctx context.Context, lineUserID string, result *service.Stage3Result) error {
	return n.push(lineUserID, completedMessages(result))
}

func (n *Notifier) push(lineUserID string, messages []messaging_api.MessageInterface) error {
	if lineUserID == "" {
		return nil
	}
	_, err := n.bot.PushMessage(&messaging_api.PushMessageRequest{
		To:       lineUserID,
		Messages: messages,
	}, "")
	return err
}
