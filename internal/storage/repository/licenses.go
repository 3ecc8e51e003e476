package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// ActivateLicense в одной транзакции проверяет наличие активной подписки
// пользователя и создаёт лицензию для пары (пользователь, машина). Тариф
// лицензии берётся из подписки; непустой plan, отличный от него, даёт
// ErrPlanMismatch.
//
// Для пары существует не более одной строки: неактивная или истёкшая
// лицензия переиспользуется, действующая активная приводит к ErrLicenseAlreadyActive.
func (s *Storage) ActivateLicense(ctx context.Context, userUID, machineID, plan string,
	now, validUntil time.Time) (*models.License, error) {
	const op = "storage.ActivateLicense"

	var lic models.License
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var (
			subID   int
			subPlan string
		)
		err := tx.QueryRowContext(ctx, `SELECT id, plan FROM subscriptions
			WHERE user_uid = $1 AND status = $2 AND end_date > $3
			ORDER BY end_date DESC
			LIMIT 1
			FOR SHARE`, userUID, models.SubscriptionActive, now).Scan(&subID, &subPlan)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrNoActiveSubscription
		}
		if err != nil {
			return err
		}
		if plan != "" && plan != subPlan {
			return models.ErrPlanMismatch
		}

		query := `INSERT INTO licenses (user_uid, machine_id, plan, valid_until, is_active)
				  VALUES ($1, $2, $3, $4, true)
				  ON CONFLICT (user_uid, machine_id) DO UPDATE
				  SET plan = EXCLUDED.plan, valid_until = EXCLUDED.valid_until, is_active = true
				  WHERE licenses.is_active = false OR licenses.valid_until <= $5
				  RETURNING id, user_uid, machine_id, plan, valid_until, is_active`
		err = tx.QueryRowContext(ctx, query, userUID, machineID, subPlan, validUntil, now).
			Scan(&lic.ID, &lic.UserUID, &lic.MachineID, &lic.Plan, &lic.ValidUntil, &lic.IsActive)
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrLicenseAlreadyActive
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &lic, nil
}

// FindActiveLicense возвращает активную лицензию для пары (пользователь, машина).
// Срок действия здесь не проверяется: это решение принимает вызывающий код.
func (s *Storage) FindActiveLicense(ctx context.Context, userUID, machineID string) (*models.License, error) {
	const op = "storage.FindActiveLicense"

	query := `SELECT id, user_uid, machine_id, plan, valid_until, is_active
			  FROM licenses
			  WHERE user_uid = $1 AND machine_id = $2 AND is_active = true`
	var lic models.License
	if err := s.DB.QueryRowContext(ctx, query, userUID, machineID).
		Scan(&lic.ID, &lic.UserUID, &lic.MachineID, &lic.Plan, &lic.ValidUntil, &lic.IsActive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, models.ErrNoMatchingLicense)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &lic, nil
}

// ListLicenses возвращает все лицензии пользователя.
func (s *Storage) ListLicenses(ctx context.Context, userUID string) ([]*models.License, error) {
	const op = "storage.ListLicenses"

	query := `SELECT id, user_uid, machine_id, plan, valid_until, is_active
			  FROM licenses
			  WHERE user_uid = $1
			  ORDER BY id`
	rows, err := s.DB.QueryContext(ctx, query, userUID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.License
	for rows.Next() {
		var lic models.License
		if err := rows.Scan(&lic.ID, &lic.UserUID, &lic.MachineID, &lic.Plan,
			&lic.ValidUntil, &lic.IsActive); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, &lic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}
