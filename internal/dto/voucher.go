package dto

import (
	"time"

	"github.com/GlebRadaev/coursepay/internal/domain"
)

type VoucherPreviewRequestDTO struct {
	Code      string  `json:"code" validate:"required,max=64" example:"SPRING10"`
	CourseIDs []int64 `json:"courseIds" validate:"required,min=1,dive,gt=0" example:"101"`
}

type VoucherPreviewResponseDTO struct {
	Valid         bool            `json:"valid" example:"true"`
	Message       string          `json:"message" example:"voucher applied"`
	TotalDiscount int64           `json:"totalDiscountCents" example:"50000"`
	Discounts     map[int64]int64 `json:"discounts,omitempty"`
}

type CreateVoucherRequestDTO struct {
	Code                string    `json:"code" validate:"required,alphanum,max=64" example:"SPRING10"`
	Scope               string    `json:"scope" validate:"required,oneof=ALL_INSTRUCTOR_COURSES SPECIFIC_COURSES" example:"ALL_INSTRUCTOR_COURSES"`
	DiscountType        string    `json:"discountType" validate:"required,oneof=PERCENT FIXED" example:"PERCENT"`
	DiscountValue       int64     `json:"discountValue" validate:"required,gt=0" example:"10"`
	MaxDiscountCents    *int64    `json:"maxDiscountCents,omitempty" validate:"omitempty,gt=0" example:"100000"`
	MinOrderCents       *int64    `json:"minOrderCents,omitempty" validate:"omitempty,gte=0" example:"200000"`
	UsageLimit          *int      `json:"usageLimit,omitempty" validate:"omitempty,gt=0" example:"100"`
	UsagePerUser        *int      `json:"usagePerUser,omitempty" validate:"omitempty,gt=0" example:"1"`
	StartDate           time.Time `json:"startDate" validate:"required" example:"2025-03-01T00:00:00Z"`
	EndDate             time.Time `json:"endDate" validate:"required,gtfield=StartDate" example:"2025-04-01T00:00:00Z"`
	ApplicableCourseIDs []int64   `json:"applicableCourseIds,omitempty" validate:"omitempty,dive,gt=0"`
}

func (r CreateVoucherRequestDTO) Voucher() *domain.Voucher {
	return &domain.Voucher{
		Code:                r.Code,
		Scope:               r.Scope,
		DiscountType:        r.DiscountType,
		DiscountValue:       r.DiscountValue,
		MaxDiscountCents:    r.MaxDiscountCents,
		MinOrderCents:       r.MinOrderCents,
		UsageLimit:          r.UsageLimit,
		UsagePerUser:        r.UsagePerUser,
		StartDate:           r.StartDate,
		EndDate:             r.EndDate,
		ApplicableCourseIDs: r.ApplicableCourseIDs,
	}
}

type VoucherResponseDTO struct {
	ID                  int64   `json:"id" example:"1"`
	Code                string  `json:"code" example:"SPRING10"`
	Scope               string  `json:"scope" example:"ALL_INSTRUCTOR_COURSES"`
	DiscountType        string  `json:"discountType" example:"PERCENT"`
	DiscountValue       int64   `json:"discountValue" example:"10"`
	MaxDiscountCents    *int64  `json:"maxDiscountCents,omitempty"`
	MinOrderCents       *int64  `json:"minOrderCents,omitempty"`
	UsageLimit          *int    `json:"usageLimit,omitempty"`
	UsagePerUser        *int    `json:"usagePerUser,omitempty"`
	UsedCount           int     `json:"usedCount" example:"3"`
	Status              string  `json:"status" example:"ACTIVE"`
	StartDate           string  `json:"startDate" example:"2025-03-01T00:00:00Z"`
	EndDate             string  `json:"endDate" example:"2025-04-01T00:00:00Z"`
	ApplicableCourseIDs []int64 `json:"applicableCourseIds,omitempty"`
}

func NewVoucherResponse(v *domain.Voucher) VoucherResponseDTO {
	return VoucherResponseDTO{
		ID:                  v.ID,
		Code:                v.Code,
		Scope:               v.Scope,
		DiscountType:        v.DiscountType,
		DiscountValue:       v.DiscountValue,
		MaxDiscountCents:    v.MaxDiscountCents,
		MinOrderCents:       v.MinOrderCents,
		UsageLimit:          v.UsageLimit,
		UsagePerUser:        v.UsagePerUser,
		UsedCount:           v.UsedCount,
		Status:              v.Status,
		StartDate:           v.StartDate.Format(time.RFC3339),
		EndDate:             v.EndDate.Format(time.RFC3339),
		ApplicableCourseIDs: v.ApplicableCourseIDs,
	}
}
