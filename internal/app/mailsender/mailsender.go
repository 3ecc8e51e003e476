// Package mailsender отправляет письма восстановления пароля из очереди RabbitMQ.
package mailsender

import (
	"context"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/multiverse-license/internal/config"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/smtp"
	senderservice "github.com/magabrotheeeer/multiverse-license/internal/services/sender"
)

type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.ValidateMailer(); err != nil {
		return nil, err
	}
	conn, err := rabbitmq.Connect(cfg.RabbitMQ.URL, cfg.RabbitMQ.MaxRetries, cfg.RabbitMQ.RetryDelay)
	if err != nil {
		return nil, err
	}

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetMailQueues())
	if err != nil {
		conn.Close()
		return nil, err
	}

	transport := smtp.NewTransport(cfg.SMTP, logger)
	senderService := senderservice.NewSenderService(logger, transport)

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderService,
		logger:        logger,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.logger, a.ch, rabbitmq.QueuePasswordReset, a.senderService.SendPasswordReset)
	if err != nil {
		a.logger.Error("failed to start consumer", slog.String("queue", rabbitmq.QueuePasswordReset), slog.Any("err", err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("mail sender shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", slog.Any("err", err))
	}

	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", slog.Any("err", err))
	}

	return nil
}
