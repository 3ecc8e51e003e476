package rabbitmq

// MailExchange обменник для писем.
const MailExchange = "mail"

// RoutingKeyPasswordReset ключ маршрутизации писем со ссылкой сброса пароля.
const RoutingKeyPasswordReset = "password_reset"

// QueuePasswordReset очередь, из которой mail-sender забирает письма сброса пароля.
const QueuePasswordReset = "mail.password_reset"

// QueueConfig описывает очередь и ключ, которым она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetMailQueues возвращает очереди обменника MailExchange.
func GetMailQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: QueuePasswordReset, RoutingKey: RoutingKeyPasswordReset},
	}
}
