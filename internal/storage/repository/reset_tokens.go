package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// CreateResetToken сохраняет токен сброса пароля.
func (s *Storage) CreateResetToken(ctx context.Context, token models.PasswordResetToken) error {
	const op = "storage.CreateResetToken"

	_, err := s.DB.ExecContext(ctx, `INSERT INTO password_reset_tokens (email, token, expires_at)
		VALUES ($1, $2, $3)`, token.Email, token.Token, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// ConsumeResetToken атомарно удаляет действующий токен и записывает новый хэш пароля.
// Если токен не найден или истёк, возвращается ErrInvalidOrExpiredToken; при любой
// ошибке транзакция откатывается и токен остаётся нетронутым.
func (s *Storage) ConsumeResetToken(ctx context.Context, token string, now time.Time, passwordHash string) error {
	const op = "storage.ConsumeResetToken"

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var email string
		err := tx.QueryRowContext(ctx, `DELETE FROM password_reset_tokens
			WHERE token = $1 AND expires_at > $2
			RETURNING email`, token, now).Scan(&email)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrInvalidOrExpiredToken
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = $1 WHERE email = $2`, passwordHash, email)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrUserNotFound
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
