package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/dto"
	"github.com/GlebRadaev/coursepay/internal/service/orderservice"
	"github.com/GlebRadaev/coursepay/internal/service/paymentservice"
	"github.com/GlebRadaev/coursepay/internal/service/voucherservice"
	"github.com/GlebRadaev/coursepay/pkg/auth"
)

const number = "12345678903"

func NewMock(t *testing.T) (*OrderHandler, *MockService, *MockPayments) {
	ctrl := gomock.NewController(t)
	service := NewMockService(ctrl)
	payments := NewMockPayments(ctrl)
	return New(service, payments), service, payments
}

func request(method, target, orderNumber, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	if orderNumber != "" {
		rctx.URLParams.Add("number", orderNumber)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, auth.UserIDKey, int64(5))
	return req.WithContext(ctx)
}

func TestOrderHandler_CreateOrder(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		mockSetup    func(s *MockService)
		expectedCode int
	}{
		{
			name: "created",
			body: `{"courseIds":[101],"voucherCode":"SPRING10"}`,
			mockSetup: func(s *MockService) {
				s.EXPECT().CreateOrder(gomock.Any(), int64(5), []int64{101}, "SPRING10").
					Return(&domain.Order{OrderNumber: number, Status: domain.OrderStatusPending, TotalCents: 450000, CreatedAt: time.Now()}, nil)
			},
			expectedCode: http.StatusCreated,
		},
		{
			name:         "malformed json",
			body:         `{`,
			mockSetup:    func(s *MockService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "empty cart fails validation",
			body:         `{"courseIds":[]}`,
			mockSetup:    func(s *MockService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "already owned",
			body: `{"courseIds":[101]}`,
			mockSetup: func(s *MockService) {
				s.EXPECT().CreateOrder(gomock.Any(), int64(5), []int64{101}, "").Return(nil, orderservice.ErrAlreadyOwned)
			},
			expectedCode: http.StatusConflict,
		},
		{
			name: "invalid voucher",
			body: `{"courseIds":[101],"voucherCode":"NOPE"}`,
			mockSetup: func(s *MockService) {
				s.EXPECT().CreateOrder(gomock.Any(), int64(5), []int64{101}, "NOPE").Return(nil, orderservice.ErrInvalidVoucher)
			},
			expectedCode: http.StatusUnprocessableEntity,
		},
		{
			name: "catalog outage",
			body: `{"courseIds":[101]}`,
			mockSetup: func(s *MockService) {
				s.EXPECT().CreateOrder(gomock.Any(), int64(5), []int64{101}, "").Return(nil, errors.New("lms down"))
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, service, _ := NewMock(t)
			tt.mockSetup(service)
			w := httptest.NewRecorder()
			handler.CreateOrder(w, request(http.MethodPost, "/api/orders", "", tt.body))
			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestOrderHandler_ListOrders(t *testing.T) {
	t.Run("orders", func(t *testing.T) {
		handler, service, _ := NewMock(t)
		service.EXPECT().ListOrders(gomock.Any(), int64(5)).Return([]domain.Order{{OrderNumber: number, Status: domain.OrderStatusPaid}}, nil)

		w := httptest.NewRecorder()
		handler.ListOrders(w, request(http.MethodGet, "/api/orders", "", ""))
		require.Equal(t, http.StatusOK, w.Code)
		var resp []dto.OrderResponseDTO
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		assert.Equal(t, number, resp[0].Number)
	})

	t.Run("no orders", func(t *testing.T) {
		handler, service, _ := NewMock(t)
		service.EXPECT().ListOrders(gomock.Any(), int64(5)).Return(nil, nil)

		w := httptest.NewRecorder()
		handler.ListOrders(w, request(http.MethodGet, "/api/orders", "", ""))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestOrderHandler_GetOrder(t *testing.T) {
	t.Run("bad luhn", func(t *testing.T) {
		handler, _, _ := NewMock(t)
		w := httptest.NewRecorder()
		handler.GetOrder(w, request(http.MethodGet, "/api/orders/12345678901", "12345678901", ""))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})

	t.Run("not found", func(t *testing.T) {
		handler, service, _ := NewMock(t)
		service.EXPECT().GetOrder(gomock.Any(), int64(5), number).Return(nil, orderservice.ErrOrderNotFound)
		w := httptest.NewRecorder()
		handler.GetOrder(w, request(http.MethodGet, "/api/orders/"+number, number, ""))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestOrderHandler_CancelAndDelete(t *testing.T) {
	handler, service, _ := NewMock(t)
	service.EXPECT().CancelOrder(gomock.Any(), int64(5), number).Return(orderservice.ErrOrderNotPending)
	service.EXPECT().DeleteOrder(gomock.Any(), int64(5), number).Return(nil)

	w := httptest.NewRecorder()
	handler.CancelOrder(w, request(http.MethodPost, "/api/orders/"+number+"/cancel", number, ""))
	assert.Equal(t, http.StatusConflict, w.Code)

	w = httptest.NewRecorder()
	handler.DeleteOrder(w, request(http.MethodDelete, "/api/orders/"+number, number, ""))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestOrderHandler_Checkout(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		mockSetup    func(p *MockPayments)
		expectedCode int
	}{
		{
			name: "redirect",
			body: `{"provider":"stripe"}`,
			mockSetup: func(p *MockPayments) {
				p.EXPECT().CreateCheckout(gomock.Any(), int64(5), number, "stripe", "").
					Return(&paymentservice.Checkout{OrderNumber: number, Provider: "stripe", RedirectURL: "https://checkout.stripe.com/c/cs_1", Status: domain.PaymentStatusPending}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name:         "unsupported provider",
			body:         `{"provider":"cash"}`,
			mockSetup:    func(p *MockPayments) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "checkout in progress",
			body: `{"provider":"paypal"}`,
			mockSetup: func(p *MockPayments) {
				p.EXPECT().CreateCheckout(gomock.Any(), int64(5), number, "paypal", "").Return(nil, paymentservice.ErrCheckoutInProgress)
			},
			expectedCode: http.StatusConflict,
		},
		{
			name: "voucher exhausted",
			body: `{"provider":"payos"}`,
			mockSetup: func(p *MockPayments) {
				p.EXPECT().CreateCheckout(gomock.Any(), int64(5), number, "payos", "").Return(nil, voucherservice.ErrVoucherExhausted)
			},
			expectedCode: http.StatusConflict,
		},
		{
			name: "provider down",
			body: `{"provider":"stripe","email":"buyer@example.com"}`,
			mockSetup: func(p *MockPayments) {
				p.EXPECT().CreateCheckout(gomock.Any(), int64(5), number, "stripe", "buyer@example.com").Return(nil, paymentservice.ErrProviderUnavailable)
			},
			expectedCode: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _, payments := NewMock(t)
			tt.mockSetup(payments)
			w := httptest.NewRecorder()
			handler.Checkout(w, request(http.MethodPost, "/api/orders/"+number+"/checkout", number, tt.body))
			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestOrderHandler_ListPayments(t *testing.T) {
	handler, _, payments := NewMock(t)
	payments.EXPECT().ListPayments(gomock.Any(), int64(5), number).
		Return([]domain.Payment{{ID: 10, Provider: "stripe", Status: domain.PaymentStatusSucceeded, AmountCents: 1999, Currency: "USD"}}, nil)

	w := httptest.NewRecorder()
	handler.ListPayments(w, request(http.MethodGet, "/api/orders/"+number+"/payments", number, ""))
	require.Equal(t, http.StatusOK, w.Code)
	var resp []dto.PaymentResponseDTO
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, domain.PaymentStatusSucceeded, resp[0].Status)
}

func TestOrderHandler_PreviewVoucher(t *testing.T) {
	handler, service, _ := NewMock(t)
	service.EXPECT().PreviewVoucher(gomock.Any(), int64(5), []int64{101}, "SPRING10").
		Return(&voucherservice.ApplyResult{Valid: false, Message: voucherservice.MsgExpired}, nil)

	w := httptest.NewRecorder()
	handler.PreviewVoucher(w, request(http.MethodPost, "/api/vouchers/preview", "", `{"code":"SPRING10","courseIds":[101]}`))
	require.Equal(t, http.StatusOK, w.Code)
	var resp dto.VoucherPreviewResponseDTO
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Valid)
	assert.Equal(t, voucherservice.MsgExpired, resp.Message)
}
