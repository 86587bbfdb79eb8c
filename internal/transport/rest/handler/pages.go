package handler

import (
	"fmt"
	"net/http"
	"net/url"
)

// Stage3RedirectPage serves GET /stage3: a tiny page that launches the
// stage-3 game in an external browser, carrying the game ID along.
type Stage3RedirectPage struct {
	gameURL string
}

// NewStage3RedirectPage creates the redirect page handler.
func NewStage3RedirectPage(stage3GameURL string) *Stage3RedirectPage {
	return &Stage3RedirectPage{gameURL: stage3GameURL}
}

func (p *Stage3RedirectPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := p.gameURL
	if id := r.URL.Query().Get("id"); id != "" {
		target = fmt.Sprintf("%s?id=%s", p.gameURL, url.QueryEscape(id))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, stage3RedirectHTML, target, target)
}

const stage3RedirectHTML = `<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta http-equiv="refresh" content="2;url=%s">
<title>STAGE3へ移動中</title>
</head>
<body>
<h1>STAGE3へ進む</h1>
<p>このページは自動的にSTAGE3のゲームへリダイレクトします。</p>
<p>もし自動でリダイレクトしない場合は、下のリンクをクリックしてください。</p>
<p><a href="%s">STAGE3へ進む</a></p>
</body>
</html>
`
