package models

// Статус подтверждённого платежа у провайдера.
const PaymentApproved = "approved"

// Payment: каноническая запись платежа, полученная из API провайдера.
type Payment struct {
	ID          string
	Status      string
	PayerEmail  string
	Plan        string
	ProviderRef string // идентификатор регулярной подписки у провайдера, если есть
}

// WebhookEvent: входящее уведомление провайдера после проверки подписи.
// Kind определяется провайдером; данные платежа берутся только из API провайдера.
type WebhookEvent struct {
	Provider   string
	Kind       string
	ResourceID string
}
