package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/multiverse-license/internal/models"
	"github.com/magabrotheeeer/multiverse-license/internal/paymentprovider"
)

type RepoMock struct{ mock.Mock }

func (m *RepoMock) CreatePaidSubscription(ctx context.Context, newUser models.User,
	sub models.Subscription) (*models.Subscription, bool, error) {
	args := m.Called(ctx, newUser, sub)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*models.Subscription), args.Bool(1), args.Error(2)
}

func (m *RepoMock) GetSubscription(ctx context.Context, id int) (*models.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) GetActiveSubscription(ctx context.Context, userUID string, now time.Time) (*models.Subscription, error) {
	args := m.Called(ctx, userUID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) CancelSubscription(ctx context.Context, id int, userUID string, now time.Time) error {
	args := m.Called(ctx, id, userUID, now)
	return args.Error(0)
}

type UsersMock struct{ mock.Mock }

func (m *UsersMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

type ProviderMock struct{ mock.Mock }

func (m *ProviderMock) Name() string            { return "mercadopago" }
func (m *ProviderMock) SignatureHeader() string { return "x-signature" }
func (m *ProviderMock) ParseEvent(body []byte) (*models.WebhookEvent, error) {
	args := m.Called(body)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WebhookEvent), args.Error(1)
}
func (m *ProviderMock) Actionable(kind string) bool { return kind == "payment" }
func (m *ProviderMock) FetchPayment(ctx context.Context, id string) (*models.Payment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Payment), args.Error(1)
}
func (m *ProviderMock) CancelRecurring(ctx context.Context, ref string) error {
	args := m.Called(ctx, ref)
	return args.Error(0)
}
func (m *ProviderMock) CreateCheckout(ctx context.Context, email string, plan models.Plan) (string, error) {
	args := m.Called(ctx, email, plan)
	return args.String(0), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

var fixedNow = time.Date(2025, 1, 31, 9, 0, 0, 0, time.UTC)

func newService(repo *RepoMock, users *UsersMock, provider *ProviderMock) *SubscriptionService {
	return NewSubscriptionService(repo, users, paymentprovider.NewRegistry(provider), newNoopLogger(), nil, time.Second).
		WithClock(func() time.Time { return fixedNow })
}

func TestOnApprovedPayment(t *testing.T) {
	approved := models.Payment{ID: "p-1", Status: models.PaymentApproved, PayerEmail: " A@X.com", Plan: "trimestral", ProviderRef: "pre-1"}

	tests := []struct {
		name       string
		payment    models.Payment
		setupMocks func(r *RepoMock)
		wantErr    error
	}{
		{
			name:    "creates subscription with headless user",
			payment: approved,
			setupMocks: func(r *RepoMock) {
				r.On("CreatePaidSubscription", mock.Anything,
					mock.MatchedBy(func(u models.User) bool {
						return u.Email == "a@x.com" && u.PasswordHash != "" && !u.IsAdmin
					}),
					mock.MatchedBy(func(s models.Subscription) bool {
						return s.Plan == "trimestral" && s.Status == models.SubscriptionActive &&
							s.StartDate.Equal(fixedNow) &&
							s.EndDate.Equal(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)) &&
							s.Provider == "mercadopago" && s.PaymentID == "p-1" && s.ProviderRef == "pre-1"
					})).
					Return(&models.Subscription{ID: 7, Status: models.SubscriptionActive}, true, nil).Once()
			},
		},
		{
			name:    "redelivery returns existing subscription",
			payment: approved,
			setupMocks: func(r *RepoMock) {
				r.On("CreatePaidSubscription", mock.Anything, mock.Anything, mock.Anything).
					Return(&models.Subscription{ID: 7, Status: models.SubscriptionActive}, false, nil).Once()
			},
		},
		{
			name:       "pending payment",
			payment:    models.Payment{ID: "p-2", Status: "pending", PayerEmail: "a@x.com", Plan: "mensual"},
			setupMocks: func(_ *RepoMock) {},
			wantErr:    models.ErrPaymentNotApproved,
		},
		{
			name:       "unknown plan",
			payment:    models.Payment{ID: "p-3", Status: models.PaymentApproved, PayerEmail: "a@x.com", Plan: "gold"},
			setupMocks: func(_ *RepoMock) {},
			wantErr:    models.ErrUnknownPlan,
		},
		{
			name:       "missing payer email",
			payment:    models.Payment{ID: "p-4", Status: models.PaymentApproved, Plan: "mensual"},
			setupMocks: func(_ *RepoMock) {},
			wantErr:    models.ErrMalformedEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(RepoMock)
			tt.setupMocks(repo)
			svc := newService(repo, new(UsersMock), new(ProviderMock))

			sub, err := svc.OnApprovedPayment(context.Background(), "mercadopago", tt.payment)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, sub)
			} else {
				require.NoError(t, err)
				assert.Equal(t, 7, sub.ID)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestCancel(t *testing.T) {
	owner := &models.User{UUID: "owner", Email: "a@x.com"}
	active := &models.Subscription{ID: 5, UserUID: "owner", Status: models.SubscriptionActive,
		Provider: "mercadopago", ProviderRef: "pre-5"}

	tests := []struct {
		name       string
		setupMocks func(r *RepoMock, u *UsersMock, p *ProviderMock)
		wantErr    error
	}{
		{
			name: "provider agrees then local cancel",
			setupMocks: func(r *RepoMock, u *UsersMock, p *ProviderMock) {
				u.On("GetUserByEmail", mock.Anything, "a@x.com").Return(owner, nil).Once()
				r.On("GetSubscription", mock.Anything, 5).Return(active, nil).Once()
				p.On("CancelRecurring", mock.Anything, "pre-5").Return(nil).Once()
				r.On("CancelSubscription", mock.Anything, 5, "owner", fixedNow).Return(nil).Once()
			},
		},
		{
			name: "provider refuses, local state untouched",
			setupMocks: func(r *RepoMock, u *UsersMock, p *ProviderMock) {
				u.On("GetUserByEmail", mock.Anything, "a@x.com").Return(owner, nil).Once()
				r.On("GetSubscription", mock.Anything, 5).Return(active, nil).Once()
				p.On("CancelRecurring", mock.Anything, "pre-5").Return(models.ErrUpstream).Once()
			},
			wantErr: models.ErrProviderCancelFailed,
		},
		{
			name: "not owner",
			setupMocks: func(r *RepoMock, u *UsersMock, _ *ProviderMock) {
				u.On("GetUserByEmail", mock.Anything, "a@x.com").Return(&models.User{UUID: "intruder"}, nil).Once()
				r.On("GetSubscription", mock.Anything, 5).Return(active, nil).Once()
			},
			wantErr: models.ErrNotOwner,
		},
		{
			name: "not found",
			setupMocks: func(r *RepoMock, u *UsersMock, _ *ProviderMock) {
				u.On("GetUserByEmail", mock.Anything, "a@x.com").Return(owner, nil).Once()
				r.On("GetSubscription", mock.Anything, 5).Return(nil, models.ErrSubscriptionNotFound).Once()
			},
			wantErr: models.ErrSubscriptionNotFound,
		},
		{
			name: "already cancelled",
			setupMocks: func(r *RepoMock, u *UsersMock, _ *ProviderMock) {
				u.On("GetUserByEmail", mock.Anything, "a@x.com").Return(owner, nil).Once()
				r.On("GetSubscription", mock.Anything, 5).
					Return(&models.Subscription{ID: 5, UserUID: "owner", Status: models.SubscriptionCancelled}, nil).Once()
			},
			wantErr: models.ErrSubscriptionNotActive,
		},
		{
			name: "local failure after provider cancel is reported",
			setupMocks: func(r *RepoMock, u *UsersMock, p *ProviderMock) {
				u.On("GetUserByEmail", mock.Anything, "a@x.com").Return(owner, nil).Once()
				r.On("GetSubscription", mock.Anything, 5).Return(active, nil).Once()
				p.On("CancelRecurring", mock.Anything, "pre-5").Return(nil).Once()
				r.On("CancelSubscription", mock.Anything, 5, "owner", fixedNow).Return(errors.New("db down")).Once()
			},
			wantErr: errors.New("db down"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, users, provider := new(RepoMock), new(UsersMock), new(ProviderMock)
			tt.setupMocks(repo, users, provider)
			svc := newService(repo, users, provider)

			err := svc.Cancel(context.Background(), "a@x.com", 5)
			switch {
			case tt.wantErr == nil:
				assert.NoError(t, err)
			case errors.Is(tt.wantErr, models.ErrProviderCancelFailed) ||
				errors.Is(tt.wantErr, models.ErrNotOwner) ||
				errors.Is(tt.wantErr, models.ErrSubscriptionNotFound) ||
				errors.Is(tt.wantErr, models.ErrSubscriptionNotActive):
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr.Error())
			}
			repo.AssertExpectations(t)
			users.AssertExpectations(t)
			provider.AssertExpectations(t)
		})
	}
}

func TestCancel_ProviderTimeoutAborts(t *testing.T) {
	repo, users, provider := new(RepoMock), new(UsersMock), new(ProviderMock)
	users.On("GetUserByEmail", mock.Anything, "a@x.com").Return(&models.User{UUID: "owner"}, nil).Once()
	repo.On("GetSubscription", mock.Anything, 5).Return(&models.Subscription{ID: 5, UserUID: "owner",
		Status: models.SubscriptionActive, Provider: "mercadopago", ProviderRef: "pre-5"}, nil).Once()
	provider.On("CancelRecurring", mock.Anything, "pre-5").
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			<-ctx.Done()
		}).
		Return(context.DeadlineExceeded).Once()

	svc := NewSubscriptionService(repo, users, paymentprovider.NewRegistry(provider), newNoopLogger(), nil, 20*time.Millisecond).
		WithClock(func() time.Time { return fixedNow })

	err := svc.Cancel(context.Background(), "a@x.com", 5)
	assert.ErrorIs(t, err, models.ErrProviderCancelFailed)
	repo.AssertNotCalled(t, "CancelSubscription", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetActive(t *testing.T) {
	repo, users := new(RepoMock), new(UsersMock)
	users.On("GetUserByEmail", mock.Anything, "a@x.com").Return(&models.User{UUID: "owner"}, nil).Twice()
	repo.On("GetActiveSubscription", mock.Anything, "owner", fixedNow).
		Return(&models.Subscription{ID: 1}, nil).Once()
	repo.On("GetActiveSubscription", mock.Anything, "owner", fixedNow).
		Return(nil, models.ErrSubscriptionNotFound).Once()

	svc := newService(repo, users, new(ProviderMock))
	sub, err := svc.GetActive(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, 1, sub.ID)

	_, err = svc.GetActive(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, models.ErrSubscriptionNotFound)
}
