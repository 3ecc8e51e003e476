// Package paypal клиент REST API PayPal: продажи по подпискам, подписки
// (billing subscriptions) и разбор webhook-уведомлений.
package paypal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/magabrotheeeer/multiverse-license/internal/config"
	"github.com/magabrotheeeer/multiverse-license/internal/models"
	"github.com/magabrotheeeer/multiverse-license/internal/paymentprovider"
)

// Name имя провайдера.
const Name = "paypal"

// SignatureHeader заголовок с подписью уведомления.
const SignatureHeader = "paypal-transmission-sig"

// Типы событий, относящиеся к оплате.
const (
	EventSaleCompleted       = "PAYMENT.SALE.COMPLETED"
	EventSubscriptionPayment = "BILLING.SUBSCRIPTION.PAYMENT"
)

// Client клиент PayPal. OAuth-токен приложения кэшируется до истечения.
type Client struct {
	clientID     string
	clientSecret string
	apiURL       string
	returnURL    string
	planIDs      map[string]string
	httpClient   *http.Client
	now          func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient создаёт клиент PayPal.
func NewClient(cfg config.PayPal, timeout time.Duration) *Client {
	return &Client{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		apiURL:       strings.TrimRight(cfg.BaseURL, "/"),
		returnURL:    cfg.ReturnURL,
		planIDs:      cfg.PlanIDs,
		httpClient:   &http.Client{Timeout: timeout},
		now:          time.Now,
	}
}

// Name реализует paymentprovider.Provider.
func (c *Client) Name() string { return Name }

// SignatureHeader реализует paymentprovider.Provider.
func (c *Client) SignatureHeader() string { return SignatureHeader }

type event struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID string `json:"id"`
	} `json:"resource"`
}

// ParseEvent разбирает уведомление вида {"event_type":...,"resource":{"id":...}}.
func (c *Client) ParseEvent(body []byte) (*models.WebhookEvent, error) {
	var ev event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrMalformedEvent, err)
	}
	if ev.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_type", models.ErrMalformedEvent)
	}
	if c.Actionable(ev.EventType) && ev.Resource.ID == "" {
		return nil, fmt.Errorf("%w: missing resource.id", models.ErrMalformedEvent)
	}
	return &models.WebhookEvent{Provider: Name, Kind: ev.EventType, ResourceID: ev.Resource.ID}, nil
}

// Actionable реализует paymentprovider.Provider.
func (c *Client) Actionable(kind string) bool {
	return kind == EventSaleCompleted || kind == EventSubscriptionPayment
}

type saleResponse struct {
	ID                 string `json:"id"`
	State              string `json:"state"`
	BillingAgreementID string `json:"billing_agreement_id"`
}

type subscriptionResponse struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CustomID   string `json:"custom_id"`
	Subscriber struct {
		EmailAddress string `json:"email_address"`
	} `json:"subscriber"`
}

// FetchPayment получает продажу, а по ней подписку, где хранятся e-mail плательщика
// и тариф (custom_id). Завершённая продажа считается подтверждённым платежом.
func (c *Client) FetchPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/payments/sale/"+url.PathEscape(paymentID), nil)
	if err != nil {
		return nil, err
	}
	var sale saleResponse
	if err := paymentprovider.Do(c.httpClient, Name, req, &sale); err != nil {
		return nil, err
	}
	if sale.BillingAgreementID == "" {
		return nil, fmt.Errorf("%w: %s: sale %s has no subscription", models.ErrUpstream, Name, paymentID)
	}

	req, err = c.newRequest(ctx, http.MethodGet, "/v1/billing/subscriptions/"+url.PathEscape(sale.BillingAgreementID), nil)
	if err != nil {
		return nil, err
	}
	var sub subscriptionResponse
	if err := paymentprovider.Do(c.httpClient, Name, req, &sub); err != nil {
		return nil, err
	}

	status := sale.State
	if strings.EqualFold(sale.State, "completed") {
		status = models.PaymentApproved
	}
	return &models.Payment{
		ID:          sale.ID,
		Status:      status,
		PayerEmail:  sub.Subscriber.EmailAddress,
		Plan:        sub.CustomID,
		ProviderRef: sale.BillingAgreementID,
	}, nil
}

// CancelRecurring отменяет подписку POST /v1/billing/subscriptions/{id}/cancel.
func (c *Client) CancelRecurring(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/billing/subscriptions/"+url.PathEscape(ref)+"/cancel",
		map[string]string{"reason": "Cancelled by customer"})
	if err != nil {
		return err
	}
	return paymentprovider.Do(c.httpClient, Name, req, nil)
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

// CreateCheckout создаёт подписку на тарифный план PayPal и возвращает ссылку approve.
func (c *Client) CreateCheckout(ctx context.Context, email string, plan models.Plan) (string, error) {
	planID, ok := c.planIDs[plan.Name]
	if !ok {
		return "", fmt.Errorf("%w: %s has no plan id for %q", models.ErrUnknownPlan, Name, plan.Name)
	}
	body := map[string]any{
		"plan_id":   planID,
		"custom_id": plan.Name,
		"subscriber": map[string]string{
			"email_address": email,
		},
		"application_context": map[string]string{
			"return_url": c.returnURL,
		},
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/billing/subscriptions", body)
	if err != nil {
		return "", err
	}
	var resp struct {
		Links []link `json:"links"`
	}
	if err := paymentprovider.Do(c.httpClient, Name, req, &resp); err != nil {
		return "", err
	}
	for _, l := range resp.Links {
		if l.Rel == "approve" {
			return l.Href, nil
		}
	}
	return "", fmt.Errorf("%w: %s: no approve link", models.ErrUpstream, Name)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := paymentprovider.NewJSONRequest(ctx, method, c.apiURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

// accessToken выдаёт OAuth-токен client_credentials, обновляя его за минуту до истечения.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v1/oauth2/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.clientID, c.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := paymentprovider.Do(c.httpClient, Name, req, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("%w: %s: empty access token", models.ErrUpstream, Name)
	}
	c.token = resp.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(resp.ExpiresIn)*time.Second - time.Minute)
	return c.token, nil
}
