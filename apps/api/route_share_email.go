package main

import (
	"fmt"
	"html"
	"strings"

	"github.com/istadmins/RotamBenim-sub000/libs/mailer"
)

func (a *App) buildRouteShareEmail(to, sender string, stops []string, link string) mailer.Message {
	subject := fmt.Sprintf("RotamBenim: %d durakli rota", len(stops))
	appURL := buildPublicURL(a.cfg.PublicBaseURL, "/route")

	var items strings.Builder
	var lines strings.Builder
	for i, stop := range stops {
		fmt.Fprintf(&items, "<li>%s</li>", html.EscapeString(stop))
		fmt.Fprintf(&lines, "%d. %s\n", i+1, stop)
	}

	body := fmt.Sprintf(`
		<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; line-height: 1.6; color: #333;">
			<h2>%s bir rota paylaştı</h2>
			<ol>%s</ol>
			<p style="margin: 30px 0;">
				<a href="%s" style="background-color: #1a73e8; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; font-weight: bold; display: inline-block;">
					Haritada aç
				</a>
			</p>
			<hr style="margin-top: 40px; border: 0; border-top: 1px solid #eee;" />
			<p style="font-size: 12px; color: #999; text-align: center;">RotamBenim ile oluşturuldu: <a href="%s" style="color: #999;">%s</a></p>
		</div>
	`, html.EscapeString(sender), items.String(), html.EscapeString(link), html.EscapeString(appURL), html.EscapeString(a.cfg.PublicBaseURL))

	text := fmt.Sprintf("%s bir rota paylaştı:\n\n%s\nHaritada aç: %s\n", sender, lines.String(), link)

	msg := mailer.Message{
		To:      []string{to},
		Subject: subject,
		HTML:    body,
		Text:    text,
	}
	if !strings.EqualFold(to, sender) {
		msg.ReplyTo = sender
	}
	return msg
}
