package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

const subscriptionColumns = `id, user_uid, plan, status, start_date, end_date, provider, payment_id, provider_ref`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var sub models.Subscription
	if err := row.Scan(&sub.ID, &sub.UserUID, &sub.Plan, &sub.Status, &sub.StartDate,
		&sub.EndDate, &sub.Provider, &sub.PaymentID, &sub.ProviderRef); err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreatePaidSubscription в одной транзакции находит или создаёт пользователя по email
// и записывает подписку для подтверждённого платежа.
//
// Пользователь, впервые появившийся через платёж, создаётся с переданным
// (непригодным для входа) хэшем пароля. Повторная доставка того же платежа
// возвращает уже существующую подписку и created = false.
func (s *Storage) CreatePaidSubscription(ctx context.Context, newUser models.User,
	sub models.Subscription) (result *models.Subscription, created bool, err error) {
	const op = "storage.CreatePaidSubscription"

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (email, password_hash, is_admin)
			VALUES ($1, $2, $3)
			ON CONFLICT (email) DO NOTHING`, newUser.Email, newUser.PasswordHash, newUser.IsAdmin); err != nil {
			return err
		}
		var userUID string
		if err := tx.QueryRowContext(ctx, `SELECT uid FROM users WHERE email = $1`, newUser.Email).
			Scan(&userUID); err != nil {
			return err
		}

		insert := `INSERT INTO subscriptions (user_uid, plan, status, start_date, end_date,
				       provider, payment_id, provider_ref)
				   VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				   ON CONFLICT (provider, payment_id) DO NOTHING
				   RETURNING ` + subscriptionColumns
		res, err := scanSubscription(tx.QueryRowContext(ctx, insert, userUID, sub.Plan, sub.Status,
			sub.StartDate, sub.EndDate, sub.Provider, sub.PaymentID, sub.ProviderRef))
		if err == nil {
			result, created = res, true
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		existing := `SELECT ` + subscriptionColumns + ` FROM subscriptions
					 WHERE provider = $1 AND payment_id = $2`
		result, err = scanSubscription(tx.QueryRowContext(ctx, existing, sub.Provider, sub.PaymentID))
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	return result, created, nil
}

// GetSubscription возвращает подписку по ID.
func (s *Storage) GetSubscription(ctx context.Context, id int) (*models.Subscription, error) {
	const op = "storage.GetSubscription"

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// GetActiveSubscription возвращает действующую в момент now подписку пользователя
// с самой поздней датой окончания.
func (s *Storage) GetActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error) {
	const op = "storage.GetActiveSubscription"

	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
			  WHERE user_uid = $1 AND status = $2 AND end_date > $3
			  ORDER BY end_date DESC
			  LIMIT 1`
	sub, err := scanSubscription(s.DB.QueryRowContext(ctx, query, userUID, models.SubscriptionActive, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrSubscriptionNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// CancelSubscription помечает подписку отменённой и, если у пользователя не осталось
// других действующих подписок, деактивирует его лицензии. Всё в одной транзакции.
func (s *Storage) CancelSubscription(ctx context.Context, id int, userUID string, now time.Time) error {
	const op = "storage.CancelSubscription"

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE subscriptions SET status = $1
			WHERE id = $2 AND user_uid = $3 AND status = $4`,
			models.SubscriptionCancelled, id, userUID, models.SubscriptionActive)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return models.ErrSubscriptionNotActive
		}

		_, err = tx.ExecContext(ctx, `UPDATE licenses SET is_active = false
			WHERE user_uid = $1 AND is_active = true
			  AND NOT EXISTS (
			      SELECT 1 FROM subscriptions
			      WHERE user_uid = $1 AND status = $2 AND end_date > $3)`,
			userUID, models.SubscriptionActive, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
