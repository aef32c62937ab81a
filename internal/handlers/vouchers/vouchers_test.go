package vouchers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/service/voucherservice"
	"github.com/GlebRadaev/coursepay/pkg/auth"
)

func NewMock(t *testing.T) (*VoucherHandler, *MockService) {
	ctrl := gomock.NewController(t)
	service := NewMockService(ctrl)
	return New(service), service
}

func request(method, target, id, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", id)
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = context.WithValue(ctx, auth.UserIDKey, int64(7))
	return req.WithContext(ctx)
}

const validVoucher = `{"code":"SPRING10","scope":"ALL_INSTRUCTOR_COURSES","discountType":"PERCENT","discountValue":10,
"startDate":"2025-03-01T00:00:00Z","endDate":"2025-04-01T00:00:00Z"}`

func TestVoucherHandler_Create(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		mockSetup    func(s *MockService)
		expectedCode int
	}{
		{
			name: "created",
			body: validVoucher,
			mockSetup: func(s *MockService) {
				s.EXPECT().Create(gomock.Any(), int64(7), gomock.Any()).DoAndReturn(func(_ context.Context, _ int64, v *domain.Voucher) (*domain.Voucher, error) {
					v.ID = 1
					v.Status = domain.VoucherStatusActive
					return v, nil
				})
			},
			expectedCode: http.StatusCreated,
		},
		{
			name:         "end before start",
			body:         `{"code":"SPRING10","scope":"ALL_INSTRUCTOR_COURSES","discountType":"PERCENT","discountValue":10,"startDate":"2025-04-01T00:00:00Z","endDate":"2025-03-01T00:00:00Z"}`,
			mockSetup:    func(s *MockService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "unknown discount type",
			body:         strings.Replace(validVoucher, "PERCENT", "BOGO", 1),
			mockSetup:    func(s *MockService) {},
			expectedCode: http.StatusBadRequest,
		},
		{
			name: "code taken",
			body: validVoucher,
			mockSetup: func(s *MockService) {
				s.EXPECT().Create(gomock.Any(), int64(7), gomock.Any()).Return(nil, voucherservice.ErrVoucherCodeTaken)
			},
			expectedCode: http.StatusConflict,
		},
		{
			name: "rejected definition",
			body: validVoucher,
			mockSetup: func(s *MockService) {
				s.EXPECT().Create(gomock.Any(), int64(7), gomock.Any()).Return(nil, voucherservice.ErrInvalidDefinition)
			},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, service := NewMock(t)
			tt.mockSetup(service)
			w := httptest.NewRecorder()
			handler.Create(w, request(http.MethodPost, "/api/instructor/vouchers", "", tt.body))
			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestVoucherHandler_List(t *testing.T) {
	handler, service := NewMock(t)
	service.EXPECT().ListByInstructor(gomock.Any(), int64(7)).Return([]domain.Voucher{{ID: 1, Code: "SPRING10", StartDate: time.Now(), EndDate: time.Now()}}, nil)

	w := httptest.NewRecorder()
	handler.List(w, request(http.MethodGet, "/api/instructor/vouchers", "", ""))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "SPRING10")
}

func TestVoucherHandler_Deactivate(t *testing.T) {
	t.Run("deactivated", func(t *testing.T) {
		handler, service := NewMock(t)
		service.EXPECT().Deactivate(gomock.Any(), int64(7), int64(1)).Return(nil)
		w := httptest.NewRecorder()
		handler.Deactivate(w, request(http.MethodPost, "/api/instructor/vouchers/1/deactivate", "1", ""))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("someone else's voucher", func(t *testing.T) {
		handler, service := NewMock(t)
		service.EXPECT().Deactivate(gomock.Any(), int64(7), int64(2)).Return(voucherservice.ErrVoucherNotFound)
		w := httptest.NewRecorder()
		handler.Deactivate(w, request(http.MethodPost, "/api/instructor/vouchers/2/deactivate", "2", ""))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		handler, _ := NewMock(t)
		w := httptest.NewRecorder()
		handler.Deactivate(w, request(http.MethodPost, "/api/instructor/vouchers/x/deactivate", "x", ""))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
