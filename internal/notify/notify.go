// Package notify agrupa los canales de salida hacia el usuario:
// email SMTP, SMS y los códigos one-time que viajan por esos canales.
package notify

import "context"

// EmailSender envía un email multipart (texto + html opcional).
type EmailSender interface {
	Send(to, subject, htmlBody, textBody string) error
}

// SMSSender envía un mensaje de texto corto.
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}
