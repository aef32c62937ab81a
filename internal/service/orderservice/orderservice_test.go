package orderservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/pg"
	"github.com/GlebRadaev/coursepay/internal/service/voucherservice"
)

type mocks struct {
	repo     *MockRepo
	catalog  *MockCatalog
	vouchers *MockVouchers
	numbers  *MockNumberGenerator
	tx       *pg.MockTXManager
}

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func NewMock(t *testing.T) (*Service, *mocks) {
	ctrl := gomock.NewController(t)
	m := &mocks{
		repo:     NewMockRepo(ctrl),
		catalog:  NewMockCatalog(ctrl),
		vouchers: NewMockVouchers(ctrl),
		numbers:  NewMockNumberGenerator(ctrl),
		tx:       pg.NewMockTXManager(ctrl),
	}
	service := New(m.repo, m.catalog, m.vouchers, m.numbers, m.tx)
	service.now = func() time.Time { return fixedNow }
	return service, m
}

func (m *mocks) runTx() {
	m.tx.EXPECT().Begin(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, fn pg.TransactionalFn) error {
		return fn(ctx)
	})
}

func quote(id, instructor, price int64, currency string) *domain.CourseQuote {
	return &domain.CourseQuote{CourseID: id, InstructorID: instructor, Title: "Course", PriceCents: price, Currency: currency, Published: true}
}

func TestCreateOrder(t *testing.T) {
	t.Run("voucher discount lands on the matching item", func(t *testing.T) {
		service, m := NewMock(t)
		m.catalog.EXPECT().GetCoursePrice(gomock.Any(), int64(100)).Return(quote(100, 7, 500000, "VND"), nil)
		m.catalog.EXPECT().IsEnrolled(gomock.Any(), int64(5), int64(100)).Return(false, nil)
		m.vouchers.EXPECT().Apply(gomock.Any(), "SPRING10", int64(5), gomock.Len(1)).Return(&voucherservice.ApplyResult{
			Valid: true, VoucherID: 1, Code: "SPRING10", Discounts: map[int64]int64{100: 40000}, TotalDiscount: 40000,
		}, nil)
		m.numbers.EXPECT().NextOrderNumber().Return("12345678903")
		m.runTx()
		m.repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, o *domain.Order) error {
			o.ID = 1
			return nil
		})

		order, err := service.CreateOrder(context.Background(), 5, []int64{100, 100}, "SPRING10")
		require.NoError(t, err)
		assert.Equal(t, int64(500000), order.SubtotalCents)
		assert.Equal(t, int64(40000), order.DiscountCents)
		assert.Equal(t, int64(460000), order.TotalCents)
		assert.Equal(t, domain.OrderStatusPending, order.Status)
		require.Len(t, order.Items, 1)
		assert.Equal(t, int64(40000), order.Items[0].DiscountCents)
		assert.Equal(t, int64(7), order.Items[0].InstructorID)
		require.NotNil(t, order.VoucherID)
		assert.Equal(t, int64(1), *order.VoucherID)
	})

	tests := []struct {
		name        string
		courseIDs   []int64
		voucher     string
		prepareMock func(m *mocks)
		expectErr   error
	}{
		{
			name:        "empty cart",
			courseIDs:   nil,
			prepareMock: func(m *mocks) {},
			expectErr:   ErrEmptyCart,
		},
		{
			name:      "unpublished course",
			courseIDs: []int64{100},
			prepareMock: func(m *mocks) {
				q := quote(100, 7, 500000, "VND")
				q.Published = false
				m.catalog.EXPECT().GetCoursePrice(gomock.Any(), int64(100)).Return(q, nil)
			},
			expectErr: ErrCourseUnavailable,
		},
		{
			name:      "unknown course",
			courseIDs: []int64{100},
			prepareMock: func(m *mocks) {
				m.catalog.EXPECT().GetCoursePrice(gomock.Any(), int64(100)).Return(nil, nil)
			},
			expectErr: ErrCourseUnavailable,
		},
		{
			name:      "already owned",
			courseIDs: []int64{100},
			prepareMock: func(m *mocks) {
				m.catalog.EXPECT().GetCoursePrice(gomock.Any(), int64(100)).Return(quote(100, 7, 500000, "VND"), nil)
				m.catalog.EXPECT().IsEnrolled(gomock.Any(), int64(5), int64(100)).Return(true, nil)
			},
			expectErr: ErrAlreadyOwned,
		},
		{
			name:      "mixed currencies",
			courseIDs: []int64{100, 200},
			prepareMock: func(m *mocks) {
				m.catalog.EXPECT().GetCoursePrice(gomock.Any(), int64(100)).Return(quote(100, 7, 500000, "VND"), nil)
				m.catalog.EXPECT().IsEnrolled(gomock.Any(), int64(5), int64(100)).Return(false, nil)
				m.catalog.EXPECT().GetCoursePrice(gomock.Any(), int64(200)).Return(quote(200, 7, 1999, "USD"), nil)
				m.catalog.EXPECT().IsEnrolled(gomock.Any(), int64(5), int64(200)).Return(false, nil)
			},
			expectErr: ErrMixedCurrency,
		},
		{
			name:      "invalid voucher",
			courseIDs: []int64{100},
			voucher:   "NOPE",
			prepareMock: func(m *mocks) {
				m.catalog.EXPECT().GetCoursePrice(gomock.Any(), int64(100)).Return(quote(100, 7, 500000, "VND"), nil)
				m.catalog.EXPECT().IsEnrolled(gomock.Any(), int64(5), int64(100)).Return(false, nil)
				m.vouchers.EXPECT().Apply(gomock.Any(), "NOPE", int64(5), gomock.Any()).
					Return(&voucherservice.ApplyResult{Message: voucherservice.MsgNotFound}, nil)
			},
			expectErr: ErrInvalidVoucher,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, m := NewMock(t)
			tt.prepareMock(m)
			order, err := service.CreateOrder(context.Background(), 5, tt.courseIDs, tt.voucher)
			assert.ErrorIs(t, err, tt.expectErr)
			assert.Nil(t, order)
		})
	}

	t.Run("catalog outage", func(t *testing.T) {
		service, m := NewMock(t)
		m.catalog.EXPECT().GetCoursePrice(gomock.Any(), int64(100)).Return(nil, errors.New("lms down"))

		_, err := service.CreateOrder(context.Background(), 5, []int64{100}, "")
		assert.Error(t, err)
	})
}

func TestCancelOrder(t *testing.T) {
	tests := []struct {
		name        string
		prepareMock func(m *mocks)
		expectErr   error
	}{
		{
			name: "pending order is cancelled",
			prepareMock: func(m *mocks) {
				m.repo.EXPECT().Cancel(gomock.Any(), "12345678903", int64(5), fixedNow).Return(true, nil)
			},
		},
		{
			name: "paid order is rejected",
			prepareMock: func(m *mocks) {
				m.repo.EXPECT().Cancel(gomock.Any(), "12345678903", int64(5), fixedNow).Return(false, nil)
				m.repo.EXPECT().GetByNumber(gomock.Any(), "12345678903").
					Return(&domain.Order{UserID: 5, Status: domain.OrderStatusPaid}, nil)
			},
			expectErr: ErrOrderNotPending,
		},
		{
			name: "someone else's order",
			prepareMock: func(m *mocks) {
				m.repo.EXPECT().Cancel(gomock.Any(), "12345678903", int64(5), fixedNow).Return(false, nil)
				m.repo.EXPECT().GetByNumber(gomock.Any(), "12345678903").
					Return(&domain.Order{UserID: 6, Status: domain.OrderStatusPending}, nil)
			},
			expectErr: ErrOrderNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, m := NewMock(t)
			tt.prepareMock(m)
			err := service.CancelOrder(context.Background(), 5, "12345678903")
			if tt.expectErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expectErr)
		})
	}
}

func TestDeleteOrder(t *testing.T) {
	tests := []struct {
		name        string
		prepareMock func(m *mocks)
		expectErr   error
	}{
		{
			name: "deleted",
			prepareMock: func(m *mocks) {
				m.runTx()
				m.repo.EXPECT().Delete(gomock.Any(), "12345678903", int64(5)).Return(true, nil)
			},
		},
		{
			name: "paid orders are kept",
			prepareMock: func(m *mocks) {
				m.runTx()
				m.repo.EXPECT().Delete(gomock.Any(), "12345678903", int64(5)).Return(false, nil)
				m.repo.EXPECT().GetByNumber(gomock.Any(), "12345678903").
					Return(&domain.Order{UserID: 5, Status: domain.OrderStatusPaid}, nil)
			},
			expectErr: ErrOrderSettled,
		},
		{
			name: "pending order with attempts",
			prepareMock: func(m *mocks) {
				m.runTx()
				m.repo.EXPECT().Delete(gomock.Any(), "12345678903", int64(5)).Return(false, nil)
				m.repo.EXPECT().GetByNumber(gomock.Any(), "12345678903").
					Return(&domain.Order{UserID: 5, Status: domain.OrderStatusPending}, nil)
			},
			expectErr: ErrOrderHasPayments,
		},
		{
			name: "missing",
			prepareMock: func(m *mocks) {
				m.runTx()
				m.repo.EXPECT().Delete(gomock.Any(), "12345678903", int64(5)).Return(false, nil)
				m.repo.EXPECT().GetByNumber(gomock.Any(), "12345678903").Return(nil, nil)
			},
			expectErr: ErrOrderNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, m := NewMock(t)
			tt.prepareMock(m)
			err := service.DeleteOrder(context.Background(), 5, "12345678903")
			if tt.expectErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.expectErr)
		})
	}
}

func TestListOrders(t *testing.T) {
	service, m := NewMock(t)
	m.repo.EXPECT().ListByUser(gomock.Any(), int64(5)).Return([]domain.Order{{OrderNumber: "12345678903"}}, nil)

	orders, err := service.ListOrders(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestPreviewVoucher(t *testing.T) {
	service, m := NewMock(t)
	m.catalog.EXPECT().GetCoursePrice(gomock.Any(), int64(100)).Return(quote(100, 7, 500000, "VND"), nil)
	m.catalog.EXPECT().IsEnrolled(gomock.Any(), int64(5), int64(100)).Return(false, nil)
	m.vouchers.EXPECT().Apply(gomock.Any(), "SPRING10", int64(5), gomock.Len(1)).
		Return(&voucherservice.ApplyResult{Valid: true, TotalDiscount: 50000, Message: voucherservice.MsgApplied}, nil)

	res, err := service.PreviewVoucher(context.Background(), 5, []int64{100}, "SPRING10")
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, int64(50000), res.TotalDiscount)
}
