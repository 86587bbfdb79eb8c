package service

import (
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/gomail.v2"
)

// Mailer sends the game URL emails over SMTP. A Mailer built without an SMTP
// host is disabled and silently skips every send.
type Mailer struct {
	dialer *gomail.Dialer
	from   string
	logger zerolog.Logger
}

// NewMailer creates a new mailer. Pass an empty host to disable mail.
func NewMailer(host string, port int, user, pass, from string, logger zerolog.Logger) *Mailer {
	m := &Mailer{
		from:   from,
		logger: logger.With().Str("component", "Mailer").Logger(),
	}
	if host != "" {
		m.dialer = gomail.NewDialer(host, port, user, pass)
	}
	return m
}

// Enabled reports whether SMTP is configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.dialer != nil
}

// SendStageURL mails the user their personal game ID and the stage's game
// URL, with the ID appended as a query parameter.
func (m *Mailer) SendStageURL(to string, stage int, gameID, gameURL string) error {
	if !m.Enabled() {
		return fmt.Errorf("mail is not configured")
	}

	url := fmt.Sprintf("%s?id=%s", gameURL, gameID)
	subject := fmt.Sprintf("【寝過ごしパニック】STAGE%dゲームURLのご案内", stage)
	body := fmt.Sprintf(
		"このメールは、あなたのLINE公式アカウントでID発行リクエストがあったため自動送信しています。\n\n"+
			"STAGE%dのゲームURLはこちらです:\n%s\n\n"+
			"あなた専用のID: %s\n\n"+
			"※このメールが迷惑メールに振り分けられた場合は、「迷惑メールでない」と設定してください。\n"+
			"ご不明な点があればLINE公式アカウントまでご連絡ください。",
		stage, url, gameID)

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, "寝過ごしパニック運営事務局")
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send stage %d mail: %w", stage, err)
	}
	m.logger.Info().Int("stage", stage).Str("gameId", gameID).Msg("game URL mail sent")
	return nil
}
