package voucherservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/coursepay/internal/domain"
)

var fixedNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func NewMock(t *testing.T) (*Service, *MockRepo) {
	ctrl := gomock.NewController(t)
	repo := NewMockRepo(ctrl)
	service := New(repo)
	service.now = func() time.Time { return fixedNow }
	return service, repo
}

func ptr[T any](v T) *T { return &v }

func activeVoucher() *domain.Voucher {
	return &domain.Voucher{
		ID:            1,
		InstructorID:  7,
		Code:          "SPRING10",
		Scope:         domain.VoucherScopeAllCourses,
		DiscountType:  domain.DiscountTypePercent,
		DiscountValue: 10,
		StartDate:     fixedNow.Add(-24 * time.Hour),
		EndDate:       fixedNow.Add(24 * time.Hour),
		Status:        domain.VoucherStatusActive,
	}
}

func TestApply(t *testing.T) {
	service, repo := NewMock(t)
	course := domain.CourseQuote{CourseID: 100, InstructorID: 7, PriceCents: 500000, Currency: "VND", Published: true}
	other := domain.CourseQuote{CourseID: 200, InstructorID: 8, PriceCents: 300000, Currency: "VND", Published: true}

	tests := []struct {
		name          string
		courses       []domain.CourseQuote
		prepareMock   func()
		expectValid   bool
		expectMessage string
		expectTotal   int64
		expectPer     map[int64]int64
	}{
		{
			name:    "percent clamped to max discount",
			courses: []domain.CourseQuote{course},
			prepareMock: func() {
				v := activeVoucher()
				v.MaxDiscountCents = ptr(int64(40000))
				repo.EXPECT().GetByCode(gomock.Any(), "SPRING10").Return(v, nil)
			},
			expectValid:   true,
			expectMessage: MsgApplied,
			expectTotal:   40000,
			expectPer:     map[int64]int64{100: 40000},
		},
		{
			name:    "other instructors course gets zero discount",
			courses: []domain.CourseQuote{course, other},
			prepareMock: func() {
				repo.EXPECT().GetByCode(gomock.Any(), "SPRING10").Return(activeVoucher(), nil)
			},
			expectValid:   true,
			expectMessage: MsgApplied,
			expectTotal:   50000,
			expectPer:     map[int64]int64{100: 50000, 200: 0},
		},
		{
			name:    "unknown code",
			courses: []domain.CourseQuote{course},
			prepareMock: func() {
				repo.EXPECT().GetByCode(gomock.Any(), "SPRING10").Return(nil, nil)
			},
			expectMessage: MsgNotFound,
		},
		{
			name:    "inactive voucher",
			courses: []domain.CourseQuote{course},
			prepareMock: func() {
				v := activeVoucher()
				v.Status = domain.VoucherStatusInactive
				repo.EXPECT().GetByCode(gomock.Any(), "SPRING10").Return(v, nil)
			},
			expectMessage: MsgInactive,
		},
		{
			name:    "not started",
			courses: []domain.CourseQuote{course},
			prepareMock: func() {
				v := activeVoucher()
				v.StartDate = fixedNow.Add(time.Hour)
				repo.EXPECT().GetByCode(gomock.Any(), "SPRING10").Return(v, nil)
			},
			expectMessage: MsgNotStarted,
		},
		{
			name:    "end date is exclusive",
			courses: []domain.CourseQuote{course},
			prepareMock: func() {
				v := activeVoucher()
				v.EndDate = fixedNow
				repo.EXPECT().GetByCode(gomock.Any(), "SPRING10").Return(v, nil)
			},
			expectMessage: MsgExpired,
		},
		{
			name:    "usage limit reached",
			courses: []domain.CourseQuote{course},
			prepareMock: func() {
				v := activeVoucher()
				v.UsageLimit = ptr(1)
				v.UsedCount = 1
				repo.EXPECT().GetByCode(gomock.Any(), "SPRING10").Return(v, nil)
			},
			expectMessage: MsgUsageLimit,
		},
		{
			name:    "no course in scope",
			courses: []domain.CourseQuote{other},
			prepareMock: func() {
				repo.EXPECT().GetByCode(gomock.Any(), "SPRING10").Return(activeVoucher(), nil)
			},
			expectMessage: MsgNotApplicable,
		},
		{
			name:    "per-user limit reached",
			courses: []domain.CourseQuote{course},
			prepareMock: func() {
				v := activeVoucher()
				v.UsagePerUser = ptr(1)
				repo.EXPECT().GetByCode(gomock.Any(), "SPRING10").Return(v, nil)
				repo.EXPECT().CountUserUsages(gomock.Any(), int64(1), int64(5)).Return(1, nil)
			},
			expectMessage: MsgPerUserLimit,
		},
		{
			name:    "minimum counts applicable courses only",
			courses: []domain.CourseQuote{course, other},
			prepareMock: func() {
				v := activeVoucher()
				v.MinOrderCents = ptr(int64(600000))
				repo.EXPECT().GetByCode(gomock.Any(), "SPRING10").Return(v, nil)
			},
			expectMessage: MsgBelowMinimum,
		},
		{
			name:    "fixed discount never exceeds the price",
			courses: []domain.CourseQuote{{CourseID: 300, InstructorID: 7, PriceCents: 20000}},
			prepareMock: func() {
				v := activeVoucher()
				v.Scope = domain.VoucherScopeSpecificCourses
				v.ApplicableCourseIDs = []int64{300}
				v.DiscountType = domain.DiscountTypeFixed
				v.DiscountValue = 50000
				repo.EXPECT().GetByCode(gomock.Any(), "SPRING10").Return(v, nil)
			},
			expectValid:   true,
			expectMessage: MsgApplied,
			expectTotal:   20000,
			expectPer:     map[int64]int64{300: 20000},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			res, err := service.Apply(context.Background(), " spring10 ", 5, tt.courses)
			require.NoError(t, err)
			assert.Equal(t, tt.expectValid, res.Valid)
			assert.Equal(t, tt.expectMessage, res.Message)
			assert.Equal(t, tt.expectTotal, res.TotalDiscount)
			if tt.expectPer != nil {
				assert.Equal(t, tt.expectPer, res.Discounts)
			}
		})
	}
}

func TestApply_StorageError(t *testing.T) {
	service, repo := NewMock(t)
	repo.EXPECT().GetByCode(gomock.Any(), "X").Return(nil, errors.New("database error"))

	_, err := service.Apply(context.Background(), "x", 5, nil)
	assert.Error(t, err)
}

func TestRecordUsage(t *testing.T) {
	voucherID := int64(1)
	order := &domain.Order{
		ID:          3,
		OrderNumber: "12345678903",
		UserID:      5,
		VoucherID:   &voucherID,
		Items: []domain.OrderItem{
			{EntityID: 100, UnitPriceCents: 500000, Quantity: 1, DiscountCents: 40000},
			{EntityID: 200, UnitPriceCents: 300000, Quantity: 1},
		},
	}

	t.Run("records discounted lines only", func(t *testing.T) {
		service, repo := NewMock(t)
		repo.EXPECT().LockByID(gomock.Any(), int64(1)).Return(activeVoucher(), nil)
		repo.EXPECT().IncrementUsage(gomock.Any(), int64(1)).Return(true, nil)
		repo.EXPECT().InsertUsages(gomock.Any(), []domain.VoucherUsage{
			{VoucherID: 1, UserID: 5, OrderID: 3, CourseID: 100, OriginalCents: 500000, DiscountCents: 40000},
		}).Return(nil)

		assert.NoError(t, service.RecordUsage(context.Background(), order))
	})

	t.Run("cap lost to a concurrent settlement", func(t *testing.T) {
		service, repo := NewMock(t)
		repo.EXPECT().LockByID(gomock.Any(), int64(1)).Return(activeVoucher(), nil)
		repo.EXPECT().IncrementUsage(gomock.Any(), int64(1)).Return(false, nil)

		assert.ErrorIs(t, service.RecordUsage(context.Background(), order), ErrVoucherExhausted)
	})

	t.Run("per-user cap already used on another order", func(t *testing.T) {
		service, repo := NewMock(t)
		v := activeVoucher()
		v.UsagePerUser = ptr(1)
		repo.EXPECT().LockByID(gomock.Any(), int64(1)).Return(v, nil)
		repo.EXPECT().CountUserUsages(gomock.Any(), int64(1), int64(5)).Return(1, nil)

		assert.ErrorIs(t, service.RecordUsage(context.Background(), order), ErrVoucherExhausted)
	})

	t.Run("per-user cap not reached", func(t *testing.T) {
		service, repo := NewMock(t)
		v := activeVoucher()
		v.UsagePerUser = ptr(2)
		repo.EXPECT().LockByID(gomock.Any(), int64(1)).Return(v, nil)
		repo.EXPECT().CountUserUsages(gomock.Any(), int64(1), int64(5)).Return(1, nil)
		repo.EXPECT().IncrementUsage(gomock.Any(), int64(1)).Return(true, nil)
		repo.EXPECT().InsertUsages(gomock.Any(), gomock.Any()).Return(nil)

		assert.NoError(t, service.RecordUsage(context.Background(), order))
	})

	t.Run("voucher row gone", func(t *testing.T) {
		service, repo := NewMock(t)
		repo.EXPECT().LockByID(gomock.Any(), int64(1)).Return(nil, nil)

		assert.ErrorIs(t, service.RecordUsage(context.Background(), order), ErrVoucherExhausted)
	})

	t.Run("order without voucher", func(t *testing.T) {
		service, _ := NewMock(t)
		assert.NoError(t, service.RecordUsage(context.Background(), &domain.Order{ID: 4}))
	})
}

func TestEnsureAvailable(t *testing.T) {
	tests := []struct {
		name      string
		voucher   *domain.Voucher
		expectErr error
	}{
		{name: "available", voucher: activeVoucher()},
		{name: "gone", voucher: nil, expectErr: ErrVoucherUnavailable},
		{
			name: "exhausted",
			voucher: func() *domain.Voucher {
				v := activeVoucher()
				v.UsageLimit = ptr(2)
				v.UsedCount = 2
				return v
			}(),
			expectErr: ErrVoucherExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service, repo := NewMock(t)
			repo.EXPECT().GetByID(gomock.Any(), int64(1)).Return(tt.voucher, nil)
			err := service.EnsureAvailable(context.Background(), 1)
			if tt.expectErr != nil {
				assert.ErrorIs(t, err, tt.expectErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestCreate(t *testing.T) {
	base := func() *domain.Voucher {
		return &domain.Voucher{
			Code:          "summer",
			Scope:         domain.VoucherScopeAllCourses,
			DiscountType:  domain.DiscountTypePercent,
			DiscountValue: 20,
			StartDate:     fixedNow,
			EndDate:       fixedNow.Add(72 * time.Hour),
		}
	}

	t.Run("created with normalized code", func(t *testing.T) {
		service, repo := NewMock(t)
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, v *domain.Voucher) (*domain.Voucher, error) {
			assert.Equal(t, "SUMMER", v.Code)
			assert.Equal(t, int64(7), v.InstructorID)
			assert.Equal(t, domain.VoucherStatusActive, v.Status)
			v.ID = 11
			return v, nil
		})

		v, err := service.Create(context.Background(), 7, base())
		require.NoError(t, err)
		assert.Equal(t, int64(11), v.ID)
	})

	t.Run("code taken", func(t *testing.T) {
		service, repo := NewMock(t)
		repo.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil, nil)

		_, err := service.Create(context.Background(), 7, base())
		assert.ErrorIs(t, err, ErrVoucherCodeTaken)
	})

	invalidCases := map[string]func(v *domain.Voucher){
		"percent over 100":          func(v *domain.Voucher) { v.DiscountValue = 101 },
		"specific scope no courses": func(v *domain.Voucher) { v.Scope = domain.VoucherScopeSpecificCourses },
		"inverted dates":            func(v *domain.Voucher) { v.EndDate = v.StartDate.Add(-time.Hour) },
		"zero usage limit":          func(v *domain.Voucher) { v.UsageLimit = ptr(0) },
		"unknown type":              func(v *domain.Voucher) { v.DiscountType = "BOGO" },
	}
	for name, mutate := range invalidCases {
		t.Run(name, func(t *testing.T) {
			service, _ := NewMock(t)
			v := base()
			mutate(v)
			_, err := service.Create(context.Background(), 7, v)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

func TestDeactivate(t *testing.T) {
	service, repo := NewMock(t)

	repo.EXPECT().Deactivate(gomock.Any(), int64(11), int64(7)).Return(true, nil)
	assert.NoError(t, service.Deactivate(context.Background(), 7, 11))

	repo.EXPECT().Deactivate(gomock.Any(), int64(12), int64(7)).Return(false, nil)
	assert.ErrorIs(t, service.Deactivate(context.Background(), 7, 12), ErrVoucherNotFound)
}
