package models

import "time"

// PasswordResetToken: одноразовый токен сброса пароля с ограниченным сроком жизни.
type PasswordResetToken struct {
	ID        int
	Email     string
	Token     string
	ExpiresAt time.Time
}

// PasswordResetMail: сообщение для сервиса рассылки со ссылкой на сброс пароля.
type PasswordResetMail struct {
	Email     string    `json:"email"`
	ResetURL  string    `json:"reset_url"`
	ExpiresAt time.Time `json:"expires_at"`
}
