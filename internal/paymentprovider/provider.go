// Package paymentprovider описывает общий интерфейс платёжных провайдеров
// и реестр провайдеров, доступных серверу.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/magabrotheeeer/multiverse-license/internal/models"
)

// Provider клиент API платёжного провайдера.
type Provider interface {
	// Name имя провайдера в маршруте /webhooks/{provider}.
	Name() string
	// SignatureHeader заголовок, в котором провайдер передаёт подпись уведомления.
	SignatureHeader() string
	// ParseEvent разбирает тело уведомления по схеме провайдера.
	ParseEvent(body []byte) (*models.WebhookEvent, error)
	// Actionable сообщает, относится ли тип события к оплате.
	Actionable(kind string) bool
	// FetchPayment получает каноническую запись платежа из API провайдера.
	FetchPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	// CancelRecurring останавливает регулярное списание по ссылке ref.
	CancelRecurring(ctx context.Context, ref string) error
	// CreateCheckout создаёт страницу оплаты тарифа и возвращает её адрес.
	CreateCheckout(ctx context.Context, email string, plan models.Plan) (string, error)
}

// Registry набор настроенных провайдеров по имени.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry создаёт реестр из переданных провайдеров.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers[p.Name()] = p
	}
	return r
}

// Get возвращает провайдера по имени или ErrUnknownProvider.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownProvider, name)
	}
	return p, nil
}

// Names возвращает отсортированные имена провайдеров.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewJSONRequest собирает запрос с телом body в JSON.
func NewJSONRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Do выполняет запрос и декодирует ответ в out, если он не nil. Сетевая ошибка,
// таймаут и любой статус вне 2xx возвращаются как ErrUpstream с именем провайдера.
func Do(client *http.Client, provider string, req *http.Request, out any) error {
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", models.ErrUpstream, provider, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s: %s %s: unexpected status %d",
			models.ErrUpstream, provider, req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", models.ErrUpstream, provider, err)
	}
	return nil
}
