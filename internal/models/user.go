// Package models содержит доменные модели сервиса лицензий: пользователей,
// лицензии, подписки, токены сброса пароля и события платёжных провайдеров.
package models

import "time"

// User представляет учётную запись пользователя.
type User struct {
	UUID         string    `json:"uid"`        // Уникальный идентификатор пользователя
	Email        string    `json:"email"`      // Электронная почта (уникальная)
	PasswordHash string    `json:"-"`          // bcrypt-хэш пароля
	IsAdmin      bool      `json:"is_admin"`   // Признак администратора
	CreatedAt    time.Time `json:"created_at"` // Дата регистрации
}
