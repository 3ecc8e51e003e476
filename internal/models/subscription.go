package models

import "time"

// Статусы подписки.
const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
	SubscriptionExpired   = "expired"
)

// Subscription: регулярная оплата тарифа пользователем, не привязанная к машине.
type Subscription struct {
	ID          int       `json:"id"`
	UserUID     string    `json:"user_uid"`
	Plan        string    `json:"plan"`
	Status      string    `json:"status"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Provider    string    `json:"provider"`
	PaymentID   string    `json:"payment_id"`
	ProviderRef string    `json:"-"` // идентификатор регулярного платежа у провайдера
}

// IsActiveAt сообщает, позволяет ли подписка активировать лицензию в момент now.
func (s Subscription) IsActiveAt(now time.Time) bool {
	return s.Status == SubscriptionActive && s.EndDate.After(now)
}
