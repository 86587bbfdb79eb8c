package linebot

import "strings"

// Intent is the state-machine operation a chat event maps to. Classification
// is deliberately dumb: exact postback tags and keyword containment over a
// tiny fixed vocabulary, matching how users actually talk to the bot.
type Intent int

const (
	IntentNone Intent = iota
	IntentGenerateID
	IntentRanking
	IntentGameHelp
	IntentDebugStage3
	IntentCharacter
)

// Postback payloads wired into the rich menu and reply buttons.
const (
	postbackGenerateID  = "generate_id"
	postbackCheckScore  = "check_score"
	postbackShowRanking = "show_ranking"
)

// ClassifyText maps free text onto an intent. For IntentCharacter the second
// return value is the character key. Match order mirrors observed user
// behavior: exact hidden commands win, then the broader keyword groups.
func ClassifyText(text string) (Intent, string) {
	t := strings.TrimSpace(text)

	if _, ok := characters[t]; ok {
		return IntentCharacter, t
	}
	if containsAny(t, "ゲーム", "プレイ", "遊ぶ") {
		return IntentGameHelp, ""
	}
	if containsAny(t, "ランキング", "順位") {
		return IntentRanking, ""
	}
	if containsAny(t, "ID", "id", "Id") && strings.Contains(t, "発行") {
		return IntentGenerateID, ""
	}
	if strings.Contains(t, "デバッグ") && strings.Contains(t, "STAGE3") {
		return IntentDebugStage3, ""
	}
	return IntentNone, ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
