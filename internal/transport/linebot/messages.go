package linebot

import (
	"fmt"
	"strings"

	"nesugoshipanic/internal/model"
	"nesugoshipanic/internal/service"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// Product copy for the hidden character commands.
var characters = map[string]string{
	"ちんかに": "🦀 ちんかに 🦀\n\nちんあなごに寄生されたカニ。本体はちんあなごであり、寄生する生物によって語尾も変わる。\nしっぽはドリルになっているため、かなり危険である。",
	"リタ猫":  "🐱 リタ猫 🐱\n\nじょぎの準マスコットキャラクター。お腹のぐるぐる模様が特徴。\n派生キャラクターが結構いるらしい。見かけたらめちゃくちゃレアなので写真に収めておこう。",
	"ヤッピー": "🐲 ？？？ 🐲\n\nAI画像生成から生まれたキャラクター。本人曰くまだ名前はないらしいが、一部の人からは「ヤッピー」と呼ばれている。\nドラゴンのような見た目だが、優しい。",
}

const (
	helpText = "こんにちは！メニューから「ID発行」を選ぶとゲームが遊べます。「ゲームを遊ぶ」でゲームページへ移動できます。"

	gameHelpText = "ゲームをプレイするには、メニューから「ID発行」を選択してIDを発行してください。そのIDをゲーム内で入力してプレイできます。"

	checkScoreText = "スコア確認機能は現在開発中です。もう少々お待ちください。"

	noRankingText = "まだランキングデータがありません。STAGE3をクリアしてランキングに載ろう！"

	loginMissingText = "LINEログイン認証の設定が不足しています。管理者にご連絡ください。"
)

func textMessage(text string) messaging_api.TextMessage {
	return messaging_api.TextMessage{Text: text}
}

// loginPromptMessage asks the user to authenticate before an ID is issued;
// the login callback does the actual issuance.
func loginPromptMessage(loginURL string) messaging_api.MessageInterface {
	return messaging_api.TemplateMessage{
		AltText: "ID発行にはLINEログイン認証が必要です",
		Template: &messaging_api.ButtonsTemplate{
			Title: "学校へ急げ！！",
			Text:  "LINEログイン認証で、あなた専用のゲームIDを発行します。認証後、ゲームURLもメールでご案内！",
			Actions: []messaging_api.ActionInterface{
				&messaging_api.UriAction{
					Label: "LINEログイン認証へ",
					Uri:   loginURL,
				},
			},
		},
	}
}

func stage3IssuedMessages(stage3ID string, subtotal int, stage3GameURL string) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{
		textMessage(fmt.Sprintf(
			"🎮 STAGE2クリアおめでとうございます！🎮\n\nSTAGE1&2のスコア: %d点\n\nSTAGE3用のIDは「%s」です。下のボタンからSTAGE3を開いてください。",
			subtotal, stage3ID)),
		messaging_api.TemplateMessage{
			AltText: "STAGE3へ進む",
			Template: &messaging_api.ButtonsTemplate{
				Text: "ボタンを押すと外部ブラウザでSTAGE3が開きます",
				Actions: []messaging_api.ActionInterface{
					&messaging_api.UriAction{
						Label: "STAGE3へ進む",
						Uri:   fmt.Sprintf("%s?id=%s", stage3GameURL, stage3ID),
					},
				},
			},
		},
	}
}

func completedMessages(result *service.Stage3Result) []messaging_api.MessageInterface {
	score := fmt.Sprintf(
		"📊 最終スコア 📊\n\nSTAGE1&2: %d点\nSTAGE3: %d点\n\n合計: %d点",
		result.Subtotal, result.Stage3Score, result.TotalScore)
	if result.Rank > 0 {
		score += fmt.Sprintf("\n\n現在のランキング: %d位", result.Rank)
	}

	return []messaging_api.MessageInterface{
		textMessage("🎊 ゲーム完了おめでとうございます！🎊"),
		textMessage(score),
		messaging_api.TemplateMessage{
			AltText: "ランキングを見る",
			Template: &messaging_api.ButtonsTemplate{
				Text: "あなたのスコアがランキングに反映されました！",
				Actions: []messaging_api.ActionInterface{
					&messaging_api.PostbackAction{
						Label:       "ランキングを見る",
						Data:        postbackShowRanking,
						DisplayText: "ランキングを見たい",
					},
				},
			},
		},
	}
}

var rankMedals = [...]string{"🥇", "🥈", "🥉"}

// rankingMessage renders the top-N board as one text block. Entries come in
// rank order with display names already resolved.
func rankingMessage(entries []model.RankEntry) messaging_api.TextMessage {
	var b strings.Builder
	b.WriteString("🏆 スコアランキング 🏆\n")
	for _, e := range entries {
		medal := fmt.Sprintf("%d位", e.Rank)
		if e.Rank <= len(rankMedals) {
			medal = rankMedals[e.Rank-1]
		}
		name := e.DisplayName
		if name == "" {
			name = "プレイヤー"
		}
		fmt.Fprintf(&b, "\n%s %s — %d点\n  STAGE1: %d点 / STAGE2: %d点 / STAGE3: %d点",
			medal, name, e.TotalScore, e.Stage1Score, e.Stage2Score, e.Stage3Score)
	}
	return textMessage(b.String())
}

func debugStage3Messages(stage3ID string, mailSent bool) []messaging_api.MessageInterface {
	mailNote := "STAGE3のゲームURLはご登録のメールアドレスに送信しました。"
	if !mailSent {
		mailNote = "メールアドレスが未登録のため、URLはメール送信されていません。"
	}
	return []messaging_api.MessageInterface{
		textMessage(fmt.Sprintf(
			"🔧 デバッグモード: STAGE3テスト 🔧\n\nSTAGE1&2を完了済みとしてマークしました。\nSTAGE1&2の仮スコア: 1250点\n\nSTAGE3用のIDは「%s」です。\n\n%s",
			stage3ID, mailNote)),
	}
}
