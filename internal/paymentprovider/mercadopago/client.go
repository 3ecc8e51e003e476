// Package mercadopago клиент API Mercado Pago: платежи, регулярные подписки
// (preapproval) и разбор webhook-уведомлений.
package mercadopago

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/config"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
	"github.com/magabrotheeeer/multiverse-license/internal/paymentprovider"
)

// Name имя провайдера.
const Name = "mercadopago"

// SignatureHeader заголовок с подписью уведомления.
const SignatureHeader = "x-signature"

// Client клиент Mercado Pago.
type Client struct {
	accessToken string
	apiURL      string
	backURL     string
	currency    string
	httpClient  *http.Client
}

// NewClient создаёт клиент Mercado Pago.
func NewClient(cfg config.MercadoPago, timeout time.Duration) *Client {
	return &Client{
		accessToken: cfg.AccessToken,
		apiURL:      strings.TrimRight(cfg.BaseURL, "/"),
		backURL:     cfg.NotifyURL,
		currency:    cfg.Currency,
		httpClient:  &http.Client{Timeout: timeout},
	}
}

// Name реализует paymentprovider.Provider.
func (c *Client) Name() string { return Name }

// SignatureHeader реализует paymentprovider.Provider.
func (c *Client) SignatureHeader() string { return SignatureHeader }

type event struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID json.Number `json:"id"`
	} `json:"data"`
}

// ParseEvent разбирает уведомление вида {"type":"payment","action":...,"data":{"id":...}}.
func (c *Client) ParseEvent(body []byte) (*models.WebhookEvent, error) {
	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedEvent, err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("%w: missing type", models.ErrMalformedEvent)
	}
	id := ev.Data.ID.String()
	if c.Actionable(ev.Type) && id == "" {
		return nil, fmt.Errorf("%w: missing data.id", models.ErrMalformedEvent)
	}
	return &models.WebhookEvent{Provider: Name, Kind: ev.Type, ResourceID: id}, nil
}

// Actionable реализует paymentprovider.Provider.
func (c *Client) Actionable(kind string) bool {
	return kind == "payment"
}

type paymentResponse struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	ExternalReference string      `json:"external_reference"`
	Payer             struct {
		Email string `json:"email"`
	} `json:"payer"`
	Metadata struct {
		PreapprovalID string `json:"preapproval_id"`
	} `json:"metadata"`
}

// FetchPayment запрашивает платёж GET /v1/payments/{id}. Тариф хранится в external_reference.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return nil, err
	}
	var resp paymentResponse
	if err := paymentprovider.Do(c.httpClient, Name, req, &resp); err != nil {
		return nil, err
	}
	return &models.Payment{
		ID:          resp.ID.String(),
		Status:      resp.Status,
		PayerEmail:  resp.Payer.Email,
		Plan:        resp.ExternalReference,
		ProviderRef: resp.Metadata.PreapprovalID,
	}, nil
}

// CancelRecurring отменяет preapproval. Разовый платёж без preapproval отменять нечего.
func (c *Client) CancelRecurring(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	req, err := c.newRequest(ctx, http.MethodPut, "/preapproval/"+url.PathEscape(ref),
		map[string]string{"status": "cancelled"})
	if err != nil {
		return err
	}
	return paymentprovider.Do(c.httpClient, Name, req, nil)
}

type autoRecurring struct {
	Frequency         int     `json:"frequency"`
	FrequencyType     string  `json:"frequency_type"`
	TransactionAmount float64 `json:"transaction_amount"`
	CurrencyID        string  `json:"currency_id"`
}

type preapprovalRequest struct {
	Reason            string        `json:"reason"`
	ExternalReference string        `json:"external_reference"`
	PayerEmail        string        `json:"payer_email"`
	BackURL           string        `json:"back_url,omitempty"`
	AutoRecurring     autoRecurring `json:"auto_recurring"`
}

// CreateCheckout создаёт регулярную подписку POST /preapproval и возвращает init_point.
func (c *Client) CreateCheckout(ctx context.Context, email string, plan models.Plan) (string, error) {
	body := preapprovalRequest{
		Reason:            "Multiverse " + plan.Name,
		ExternalReference: plan.Name,
		PayerEmail:        email,
		BackURL:           c.backURL,
		AutoRecurring: autoRecurring{
			Frequency:         plan.Months,
			FrequencyType:     "months",
			TransactionAmount: plan.Price,
			CurrencyID:        c.currency,
		},
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/preapproval", body)
	if err != nil {
		return "", err
	}
	var resp struct {
		InitPoint string `json:"init_point"`
	}
	if err := paymentprovider.Do(c.httpClient, Name, req, &resp); err != nil {
		return "", err
	}
	if resp.InitPoint == "" {
		return "", fmt.Errorf("%w: %s: empty init_point", models.ErrUpstream, Name)
	}
	return resp.InitPoint, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	req, err := paymentprovider.NewJSONRequest(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	return req, nil
}
