package router

import (
	"log/slog"

	tg "github.com/m3rciful/shopbot/core/telegram"
	"github.com/m3rciful/shopbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// TextOptions controls routing of message updates.
type TextOptions struct {
	// Text receives every text message, commands included.
	Text tele.HandlerFunc
	// Unsupported receives non-text messages together with their content kind.
	Unsupported func(c tele.Context, kind string) error
}

// unsupportedKinds maps non-text endpoints to the content kind reported to users.
var unsupportedKinds = []struct {
	endpoint string
	kind     string
}{
	{tele.OnDocument, "document"},
	{tele.OnPhoto, "photo"},
	{tele.OnSticker, "sticker"},
	{tele.OnVoice, "voice"},
	{tele.OnVideo, "video"},
	{tele.OnAudio, "audio"},
	{tele.OnAnimation, "animation"},
	{tele.OnVideoNote, "video_note"},
	{tele.OnLocation, "location"},
	{tele.OnContact, "contact"},
}

// TextRoutes builds the text route and one route per unsupported content kind.
func TextRoutes(opts TextOptions) []tg.Route {
	textHandler := func(c tele.Context) error {
		name := "text"
		if cmd := commandToken(c.Text()); cmd != "" {
			name = "cmd." + cmd
		}
		return handled(c, name, opts.Text)
	}

	routes := []tg.Route{{
		Endpoint: tele.OnText,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(textHandler)),
	}}

	for _, u := range unsupportedKinds {
		kind := u.kind
		h := func(c tele.Context) error {
			var fn tele.HandlerFunc
			if opts.Unsupported != nil {
				fn = func(c tele.Context) error { return opts.Unsupported(c, kind) }
			}
			return handled(c, "unsupported."+kind, fn, slog.String("kind", kind))
		}
		routes = append(routes, tg.Route{
			Endpoint: u.endpoint,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(h)),
		})
	}
	return routes
}
