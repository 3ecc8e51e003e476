package smtp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/config"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/sl"
)

const dialTimeout = 10 * time.Second

// ErrNoStartTLS сервер не предлагает STARTTLS, учётные данные не отправляются.
var ErrNoStartTLS = errors.New("smtp server does not support STARTTLS")

// Transport реализует SMTP транспорт для отправки писем.
type Transport struct {
	cfg config.SMTP
	log *slog.Logger
}

// NewTransport создает новый экземпляр Transport.
func NewTransport(cfg config.SMTP, log *slog.Logger) *Transport {
	return &Transport{cfg: cfg, log: log}
}

// Connect устанавливает соединение с SMTP сервером и включает STARTTLS.
// Аутентификация выполняется, если задан пользователь SMTP.
func (t *Transport) Connect() (Client, error) {
	const op = "smtp.Connect"
	addr := net.JoinHostPort(t.cfg.Host, t.cfg.Port)
	log := t.log.With(slog.String("op", op), slog.String("addr", addr))

	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		log.Error("failed to dial SMTP server", sl.Err(err))
		return nil, fmt.Errorf("%s: failed to dial SMTP server: %w", op, err)
	}

	client, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		log.Error("failed to create SMTP client", sl.Err(err))
		return nil, fmt.Errorf("%s: failed to create SMTP client: %w", op, err)
	}

	if ok, _ := client.Extension("STARTTLS"); !ok {
		return nil, t.abort(log, client, op, ErrNoStartTLS)
	}
	if err := client.StartTLS(&tls.Config{ServerName: t.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
		return nil, t.abort(log, client, op, fmt.Errorf("failed to start TLS: %w", err))
	}

	if t.cfg.User != "" {
		auth := smtp.PlainAuth("", t.cfg.User, t.cfg.Pass, t.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return nil, t.abort(log, client, op, fmt.Errorf("smtp auth failed: %w", err))
		}
	}

	return client, nil
}

// abort закрывает незавершённую сессию и возвращает обёрнутую ошибку.
func (t *Transport) abort(log *slog.Logger, client *smtp.Client, op string, err error) error {
	log.Error("smtp session aborted", sl.Err(err))
	if closeErr := client.Close(); closeErr != nil {
		log.Error("failed to close client", sl.Err(closeErr))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Sender возвращает адрес отправителя: From, если задан, иначе имя пользователя SMTP.
func (t *Transport) Sender() string {
	if t.cfg.From != "" {
		return t.cfg.From
	}
	return t.cfg.User
}
