package models

import "errors"

// Ошибки учётных записей и токенов.
var (
	ErrDuplicateEmail        = errors.New("email already registered")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenExpired          = errors.New("token expired")
	ErrWrongTokenType        = errors.New("wrong token type")
	ErrUserNotFound          = errors.New("user not found")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired reset token")
	ErrTooManyRequests       = errors.New("too many requests")
	ErrForbidden             = errors.New("admin privileges required")
)

// Ошибки лицензий и подписок.
var (
	ErrNoActiveSubscription  = errors.New("no active subscription")
	ErrNoMatchingLicense     = errors.New("no matching license")
	ErrLicenseExpired        = errors.New("license expired")
	ErrLicenseAlreadyActive  = errors.New("license already active for this machine")
	ErrSubscriptionNotFound  = errors.New("subscription not found")
	ErrNotOwner              = errors.New("subscription belongs to another user")
	ErrSubscriptionNotActive = errors.New("subscription is not active")
	ErrUnknownPlan           = errors.New("unknown plan")
	ErrPlanMismatch          = errors.New("plan does not match active subscription")
)

// Ошибки платёжных провайдеров и вебхуков.
var (
	ErrMissingSignature     = errors.New("missing webhook signature")
	ErrMalformedSignature   = errors.New("malformed webhook signature")
	ErrSignatureMismatch    = errors.New("webhook signature mismatch")
	ErrStaleSignature       = errors.New("webhook signature timestamp out of tolerance")
	ErrMalformedEvent       = errors.New("malformed webhook event")
	ErrUnknownProvider      = errors.New("unknown payment provider")
	ErrPaymentNotApproved   = errors.New("payment not approved")
	ErrProviderCancelFailed = errors.New("payment provider failed to cancel recurring billing")
	ErrUpstream             = errors.New("payment provider request failed")
)
