package domain

import (
	"strings"
	"time"
)

// Template 是预热邮件模板，主题与正文支持 {{date}} 与 {{senderName}} 占位符。
type Template struct {
	Subject string
	Body    string
}

// DefaultTemplates 返回内置的内部预热模板集。
// 预热邮件只在系统内部邮箱之间交换，不发给外部地址。
func DefaultTemplates() []Template {
	return []Template{
		{
			Subject: "Sprawdzenie poczty - {{date}}",
			Body:    "Dzień dobry,\n\nTo automatyczna wiadomość testowa sprawdzająca działanie skrzynki mailowej.\n\nPozdrawiam,\n{{senderName}}",
		},
		{
			Subject: "Aktualizacja systemu - {{date}}",
			Body:    "Cześć,\n\nInformuję o pomyślnej aktualizacji systemu mailowego.\n\nPozdrawiam,\n{{senderName}}",
		},
		{
			Subject: "Test dostarczenia - {{date}}",
			Body:    "Witam,\n\nTest dostarczalności wiadomości email.\n\nPozdrawiam,\n{{senderName}}",
		},
		{
			Subject: "Weryfikacja połączenia - {{date}}",
			Body:    "Dzień dobry,\n\nWeryfikacja połączenia mailowego.\n\nPozdrawiam,\n{{senderName}}",
		},
		{
			Subject: "Powiadomienie systemowe - {{date}}",
			Body:    "Witam,\n\nPowiadomienie o statusie systemu mailowego.\n\nPozdrawiam,\n{{senderName}}",
		},
		{
			Subject: "Sprawdzenie połączenia SMTP - {{date}}",
			Body:    "Cześć,\n\nSprawdzenie działania połączenia SMTP.\n\nPozdrawiam,\n{{senderName}}",
		},
		{
			Subject: "Codzienne sprawdzenie systemu - {{date}}",
			Body:    "Dzień dobry,\n\nCodzienne sprawdzenie działania systemu.\n\nPozdrawiam,\n{{senderName}}",
		},
	}
}

// Render 替换模板占位符并返回主题与正文。
// 日期格式固定为 dd.MM.yyyy。
func (t Template) Render(senderName string, now time.Time) (subject, body string) {
	date := now.Format("02.01.2006")
	replacer := strings.NewReplacer(
		"{{date}}", date,
		"{{senderName}}", senderName,
	)
	return replacer.Replace(t.Subject), replacer.Replace(t.Body)
}
