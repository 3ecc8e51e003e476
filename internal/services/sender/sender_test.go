package services

import (
	"errors"
	"io"
	"log/slog"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/multiverse-license/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/multiverse-license/internal/lib/smtp"
)

type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Connect() (smtp.Client, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(smtp.Client), args.Error(1)
}

func (m *MockTransport) Sender() string {
	args := m.Called()
	return args.String(0)
}

type MockSMTPClient struct {
	mock.Mock
}

func (m *MockSMTPClient) Mail(from string) error {
	args := m.Called(from)
	return args.Error(0)
}

func (m *MockSMTPClient) Rcpt(to string) error {
	args := m.Called(to)
	return args.Error(0)
}

func (m *MockSMTPClient) Data() (io.WriteCloser, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.WriteCloser), args.Error(1)
}

func (m *MockSMTPClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockSMTPClient) Quit() error {
	args := m.Called()
	return args.Error(0)
}

type MockSMTPWriter struct {
	mock.Mock
}

func (m *MockSMTPWriter) Write(p []byte) (n int, err error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *MockSMTPWriter) Close() error {
	args := m.Called()
	return args.Error(0)
}

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

const resetBody = `{"email":"test@example.com","reset_url":"https://app.example/auth/reset?token=abc","expires_at":"2025-01-01T13:00:00Z"}`

func TestSenderService_SendPasswordReset(t *testing.T) {
	tests := []struct {
		name          string
		body          []byte
		setupMocks    func(*MockTransport)
		expectedError bool
		errorMessage  string
		permanent     bool
	}{
		{
			name: "success - send reset email",
			body: []byte(resetBody),
			setupMocks: func(t *MockTransport) {
				mockClient := new(MockSMTPClient)
				mockWriter := new(MockSMTPWriter)

				t.On("Sender").Return("sender@example.com")
				t.On("Connect").Return(mockClient, nil).Once()
				mockClient.On("Mail", "sender@example.com").Return(nil).Once()
				mockClient.On("Rcpt", "test@example.com").Return(nil).Once()
				mockClient.On("Data").Return(mockWriter, nil).Once()
				mockWriter.On("Write", mock.MatchedBy(func(p []byte) bool {
					return strings.Contains(string(p), "https://app.example/auth/reset?token=abc") &&
						strings.Contains(string(p), "To: test@example.com")
				})).Return(100, nil).Once()
				mockWriter.On("Close").Return(nil).Once()
				mockClient.On("Quit").Return(nil).Once()
				mockClient.On("Close").Return(nil).Once()
			},
			expectedError: false,
		},
		{
			name: "invalid JSON",
			body: []byte(`invalid json`),
			setupMocks: func(_ *MockTransport) {
			},
			expectedError: true,
			errorMessage:  "error unmarshalling message",
			permanent:     true,
		},
		{
			name: "missing reset url",
			body: []byte(`{"email":"test@example.com"}`),
			setupMocks: func(_ *MockTransport) {
			},
			expectedError: true,
			errorMessage:  "reset_url",
			permanent:     true,
		},
		{
			name:          "expired link",
			body:          []byte(`{"email":"test@example.com","reset_url":"https://app.example/auth/reset?token=abc","expires_at":"2024-12-31T10:00:00Z"}`),
			setupMocks:    func(_ *MockTransport) {},
			expectedError: true,
			errorMessage:  "expired",
			permanent:     true,
		},
		{
			name: "SMTP connection error",
			body: []byte(resetBody),
			setupMocks: func(t *MockTransport) {
				t.On("Sender").Return("sender@example.com")
				t.On("Connect").Return(nil, errors.New("connection error")).Once()
			},
			expectedError: true,
			errorMessage:  "connection error",
		},
		{
			name: "recipient rejected",
			body: []byte(resetBody),
			setupMocks: func(t *MockTransport) {
				mockClient := new(MockSMTPClient)

				t.On("Sender").Return("sender@example.com")
				t.On("Connect").Return(mockClient, nil).Once()
				mockClient.On("Mail", "sender@example.com").Return(nil).Once()
				mockClient.On("Rcpt", "test@example.com").Return(&textproto.Error{Code: 550, Msg: "mailbox unavailable"}).Once()
				mockClient.On("Close").Return(nil).Once()
			},
			expectedError: true,
			errorMessage:  "550",
			permanent:     true,
		},
		{
			name: "recipient temporarily deferred",
			body: []byte(resetBody),
			setupMocks: func(t *MockTransport) {
				mockClient := new(MockSMTPClient)

				t.On("Sender").Return("sender@example.com")
				t.On("Connect").Return(mockClient, nil).Once()
				mockClient.On("Mail", "sender@example.com").Return(nil).Once()
				mockClient.On("Rcpt", "test@example.com").Return(&textproto.Error{Code: 451, Msg: "try again later"}).Once()
				mockClient.On("Close").Return(nil).Once()
			},
			expectedError: true,
			errorMessage:  "451",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := new(MockTransport)
			service := NewSenderService(newNoopLogger(), transport).WithClock(func() time.Time {
				return time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
			})

			tt.setupMocks(transport)

			err := service.SendPasswordReset(tt.body)

			if tt.expectedError {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMessage)
				assert.Equal(t, tt.permanent, errors.Is(err, rabbitmq.ErrPermanent))
			} else {
				assert.NoError(t, err)
			}

			transport.AssertExpectations(t)
		})
	}
}

func TestComposeMessage(t *testing.T) {
	msg := string(composeMessage("noreply@multiverse.example", "a@x.com", resetSubject, "línea uno"))

	headers, body, ok := strings.Cut(msg, "\r\n\r\n")
	assert.True(t, ok)
	assert.Equal(t, "línea uno", body)
	assert.Contains(t, headers, "From: noreply@multiverse.example\r\n")
	assert.Contains(t, headers, "To: a@x.com\r\n")
	assert.Contains(t, headers, "Subject: =?utf-8?q?")
	assert.NotContains(t, headers, "contraseña", "subject must be RFC 2047 encoded")
}
