package webhooks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/gateway"
	"github.com/GlebRadaev/coursepay/internal/payout"
)

type mocks struct {
	payments    *MockPayments
	payouts     *MockPayoutVerifier
	withdrawals *MockWithdrawals
}

func NewMock(t *testing.T) (*WebhookHandler, *mocks) {
	ctrl := gomock.NewController(t)
	m := &mocks{
		payments:    NewMockPayments(ctrl),
		payouts:     NewMockPayoutVerifier(ctrl),
		withdrawals: NewMockWithdrawals(ctrl),
	}
	return New(m.payments, m.payouts, m.withdrawals), m
}

func paymentRequest(provider, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider, strings.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("provider", provider)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestWebhookHandler_Payment(t *testing.T) {
	body := `{"id":"evt_1"}`
	tests := []struct {
		name         string
		provider     string
		mockSetup    func(m *mocks)
		expectedCode int
		expectedBody string
	}{
		{
			name:     "applied",
			provider: "stripe",
			mockSetup: func(m *mocks) {
				m.payments.EXPECT().Ingest(gomock.Any(), "stripe", []byte(body), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ string, _ []byte, h http.Header) (string, error) {
						assert.Equal(t, "t=1,v1=abc", h.Get("Stripe-Signature"))
						return domain.ResultApplied, nil
					})
			},
			expectedCode: http.StatusOK,
			expectedBody: `{"result":"applied"}`,
		},
		{
			name:     "replay",
			provider: "stripe",
			mockSetup: func(m *mocks) {
				m.payments.EXPECT().Ingest(gomock.Any(), "stripe", gomock.Any(), gomock.Any()).Return(domain.ResultDuplicate, nil)
			},
			expectedCode: http.StatusOK,
			expectedBody: `{"result":"duplicate"}`,
		},
		{
			name:     "bad signature",
			provider: "stripe",
			mockSetup: func(m *mocks) {
				m.payments.EXPECT().Ingest(gomock.Any(), "stripe", gomock.Any(), gomock.Any()).
					Return("", fmt.Errorf("%w: v1 mismatch", gateway.ErrInvalidSignature))
			},
			expectedCode: http.StatusUnauthorized,
		},
		{
			name:     "unknown provider",
			provider: "venmo",
			mockSetup: func(m *mocks) {
				m.payments.EXPECT().Ingest(gomock.Any(), "venmo", gomock.Any(), gomock.Any()).
					Return("", fmt.Errorf("%w: venmo", gateway.ErrUnknownProvider))
			},
			expectedCode: http.StatusNotFound,
		},
		{
			name:     "malformed",
			provider: "payos",
			mockSetup: func(m *mocks) {
				m.payments.EXPECT().Ingest(gomock.Any(), "payos", gomock.Any(), gomock.Any()).Return("", gateway.ErrMalformedEvent)
			},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:     "storage error asks for redelivery",
			provider: "paypal",
			mockSetup: func(m *mocks) {
				m.payments.EXPECT().Ingest(gomock.Any(), "paypal", gomock.Any(), gomock.Any()).Return("", errors.New("db down"))
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, m := NewMock(t)
			tt.mockSetup(m)
			w := httptest.NewRecorder()
			handler.Payment(w, paymentRequest(tt.provider, body))
			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
		})
	}
}

func TestWebhookHandler_Payout(t *testing.T) {
	ev := &domain.PayoutEvent{Provider: payout.ProviderBank, EventID: "po_1", BatchID: "b1", Outcome: domain.PayoutOutcomeSucceeded}

	t.Run("applied", func(t *testing.T) {
		handler, m := NewMock(t)
		m.payouts.EXPECT().VerifyAndParse(gomock.Any(), gomock.Any(), gomock.Any()).Return(ev, nil)
		m.withdrawals.EXPECT().HandlePayoutEvent(gomock.Any(), ev).Return(domain.ResultApplied, nil)

		w := httptest.NewRecorder()
		handler.Payout(w, httptest.NewRequest(http.MethodPost, "/webhooks/payouts", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"result":"applied"}`, w.Body.String())
	})

	t.Run("bad signature", func(t *testing.T) {
		handler, m := NewMock(t)
		m.payouts.EXPECT().VerifyAndParse(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, payout.ErrInvalidSignature)

		w := httptest.NewRecorder()
		handler.Payout(w, httptest.NewRequest(http.MethodPost, "/webhooks/payouts", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed", func(t *testing.T) {
		handler, m := NewMock(t)
		m.payouts.EXPECT().VerifyAndParse(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, payout.ErrMalformedEvent)

		w := httptest.NewRecorder()
		handler.Payout(w, httptest.NewRequest(http.MethodPost, "/webhooks/payouts", strings.NewReader(`nope`)))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("apply failure", func(t *testing.T) {
		handler, m := NewMock(t)
		m.payouts.EXPECT().VerifyAndParse(gomock.Any(), gomock.Any(), gomock.Any()).Return(ev, nil)
		m.withdrawals.EXPECT().HandlePayoutEvent(gomock.Any(), ev).Return("", errors.New("db down"))

		w := httptest.NewRecorder()
		handler.Payout(w, httptest.NewRequest(http.MethodPost, "/webhooks/payouts", strings.NewReader(`{}`)))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
