// Package metrics содержит счётчики Prometheus сервиса лицензий.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Значения метки result.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultIgnored  = "ignored"
	ResultError    = "error"
)

// Metrics набор счётчиков. Методы безопасно вызывать на nil.
type Metrics struct {
	licenseValidations *prometheus.CounterVec
	licenseActivations *prometheus.CounterVec
	webhookEvents      *prometheus.CounterVec
	logins             *prometheus.CounterVec
}

// New создаёт счётчики и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		licenseValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "license_validations_total",
			Help: "License validation requests by result.",
		}, []string{"result"}),
		licenseActivations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "license_activations_total",
			Help: "License activation requests by result.",
		}, []string{"result"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Payment webhook deliveries by provider and result.",
		}, []string{"provider", "result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.licenseValidations, m.licenseActivations, m.webhookEvents, m.logins)
	return m
}

// LicenseValidation учитывает проверку лицензии.
func (m *Metrics) LicenseValidation(result string) {
	if m == nil {
		return
	}
	m.licenseValidations.WithLabelValues(result).Inc()
}

// LicenseActivation учитывает активацию лицензии.
func (m *Metrics) LicenseActivation(result string) {
	if m == nil {
		return
	}
	m.licenseActivations.WithLabelValues(result).Inc()
}

// WebhookEvent учитывает уведомление провайдера.
func (m *Metrics) WebhookEvent(provider, result string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(provider, result).Inc()
}

// Login учитывает попытку входа.
func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}
