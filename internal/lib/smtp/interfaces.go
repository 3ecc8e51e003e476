// Package smtp отправляет письма сервиса лицензий через SMTP с STARTTLS.
package smtp

import "io"

// Client подмножество *smtp.Client, нужное для отправки одного письма.
type Client interface {
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
}

// Mailer открывает аутентифицированную сессию и сообщает адрес отправителя.
type Mailer interface {
	Connect() (Client, error)
	Sender() string
}
