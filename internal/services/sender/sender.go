package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/textproto"
	"strings"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/smtp"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// SenderService отправляет письма, пришедшие из очереди рассылки.
type SenderService struct {
	transport smtp.Mailer
	log       *slog.Logger
	now       func() time.Time
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(log *slog.Logger, transport smtp.Mailer) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
		now:       time.Now,
	}
}

// WithClock подменяет источник времени.
func (s *SenderService) WithClock(now func() time.Time) *SenderService {
	s.now = now
	return s
}

// SendPasswordReset отправляет ссылку для сброса пароля. Неразборчивые
// сообщения, просроченные ссылки и постоянные отказы SMTP помечаются
// rabbitmq.ErrPermanent и повторно не доставляются.
func (s *SenderService) SendPasswordReset(body []byte) error {
	var message models.PasswordResetMail
	if err := json.Unmarshal(body, &message); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return rabbitmq.Permanent(fmt.Errorf("error unmarshalling message: %w", err))
	}
	if message.Email == "" || message.ResetURL == "" {
		return rabbitmq.Permanent(fmt.Errorf("error unmarshalling message: %w", errors.New("email and reset_url are required")))
	}
	if !message.ExpiresAt.IsZero() && !s.now().Before(message.ExpiresAt) {
		s.log.Warn("reset link already expired, skipping", slog.String("to", message.Email))
		return rabbitmq.Permanent(errors.New("reset link expired"))
	}

	bodyText := fmt.Sprintf("¿Olvidaste tu contraseña?\r\n\r\n"+
		"Abre el siguiente enlace para restablecerla:\r\n%s\r\n\r\n"+
		"El enlace expira el %s (UTC). Si no solicitaste el cambio, ignora este mensaje.",
		message.ResetURL, message.ExpiresAt.UTC().Format("2006-01-02 15:04"))

	return classify(s.send(message.Email, resetSubject, bodyText))
}

// classify помечает ответы SMTP с кодом 5xx как постоянные.
func classify(err error) error {
	var reply *textproto.Error
	if errors.As(err, &reply) && reply.Code >= 500 {
		return rabbitmq.Permanent(err)
	}
	return err
}

// resetSubject тема письма сброса пароля.
const resetSubject = "Restablece tu contraseña - Multiverse Gamer"

// composeMessage собирает письмо RFC 5322. Тема кодируется по RFC 2047,
// так как содержит не ASCII символы.
func composeMessage(from, to, subject, body string) []byte {
	return []byte(strings.Join([]string{
		"From: " + from,
		"To: " + to,
		"Subject: " + mime.QEncoding.Encode("utf-8", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"Content-Transfer-Encoding: 8bit",
		"",
		body,
	}, "\r\n"))
}

func (s *SenderService) send(to, subject, bodyText string) error {
	from := s.transport.Sender()
	log := s.log.With(slog.String("to", to))

	client, err := s.transport.Connect()
	if err != nil {
		log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(from); err != nil {
		log.Error("failed to set MAIL FROM", slog.String("from", from), sl.Err(err))
		return err
	}
	if err := client.Rcpt(to); err != nil {
		log.Error("failed to set RCPT TO", sl.Err(err))
		return err
	}

	wc, err := client.Data()
	if err != nil {
		log.Error("failed to get Data writer", sl.Err(err))
		return err
	}
	if _, err = wc.Write(composeMessage(from, to, subject, bodyText)); err != nil {
		log.Error("failed to write email body", sl.Err(err))
		return err
	}
	if err = wc.Close(); err != nil {
		log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	log.Info("password reset email sent")
	return nil
}
