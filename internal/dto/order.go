package dto

import (
	"time"

	"github.com/GlebRadaev/coursepay/internal/domain"
)

type CreateOrderRequestDTO struct {
	CourseIDs   []int64 `json:"courseIds" validate:"required,min=1,dive,gt=0" example:"101,102"`
	VoucherCode string  `json:"voucherCode,omitempty" validate:"omitempty,max=64" example:"SPRING10"`
}

type OrderItemDTO struct {
	CourseID       int64  `json:"courseId" example:"101"`
	Title          string `json:"title" example:"Go in Practice"`
	UnitPriceCents int64  `json:"unitPriceCents" example:"500000"`
	Quantity       int    `json:"quantity" example:"1"`
	DiscountCents  int64  `json:"discountCents" example:"50000"`
}

type OrderResponseDTO struct {
	Number        string         `json:"number" example:"12345678903"`
	Status        string         `json:"status" example:"PENDING"`
	Currency      string         `json:"currency" example:"VND"`
	SubtotalCents int64          `json:"subtotalCents" example:"500000"`
	DiscountCents int64          `json:"discountCents" example:"50000"`
	TotalCents    int64          `json:"totalCents" example:"450000"`
	VoucherCode   string         `json:"voucherCode,omitempty" example:"SPRING10"`
	Items         []OrderItemDTO `json:"items,omitempty"`
	CreatedAt     string         `json:"createdAt" example:"2025-03-10T12:00:00Z"`
	PaidAt        string         `json:"paidAt,omitempty" example:"2025-03-10T12:05:00Z"`
}

func NewOrderResponse(o *domain.Order) OrderResponseDTO {
	resp := OrderResponseDTO{
		Number:        o.OrderNumber,
		Status:        o.Status,
		Currency:      o.Currency,
		SubtotalCents: o.SubtotalCents,
		DiscountCents: o.DiscountCents,
		TotalCents:    o.TotalCents,
		VoucherCode:   o.VoucherCode,
		CreatedAt:     o.CreatedAt.Format(time.RFC3339),
	}
	if o.PaidAt != nil {
		resp.PaidAt = o.PaidAt.Format(time.RFC3339)
	}
	for _, item := range o.Items {
		resp.Items = append(resp.Items, OrderItemDTO{
			CourseID:       item.EntityID,
			Title:          item.Title,
			UnitPriceCents: item.UnitPriceCents,
			Quantity:       item.Quantity,
			DiscountCents:  item.DiscountCents,
		})
	}
	return resp
}

type CheckoutRequestDTO struct {
	Provider string `json:"provider" validate:"required,oneof=stripe paypal payos" example:"stripe"`
	Email    string `json:"email,omitempty" validate:"omitempty,email" example:"buyer@example.com"`
}

type PaymentResponseDTO struct {
	ID          int64  `json:"id" example:"10"`
	Provider    string `json:"provider" example:"stripe"`
	Status      string `json:"status" example:"SUCCEEDED"`
	AmountCents int64  `json:"amountCents" example:"450000"`
	Currency    string `json:"currency" example:"VND"`
	CreatedAt   string `json:"createdAt" example:"2025-03-10T12:00:00Z"`
}

type RefundRequestDTO struct {
	AmountCents int64  `json:"amountCents" validate:"required,gt=0" example:"450000"`
	Reason      string `json:"reason" validate:"required,max=255" example:"requested by customer"`
}

type RefundResponseDTO struct {
	ID          int64  `json:"id" example:"4"`
	Status      string `json:"status" example:"PENDING"`
	AmountCents int64  `json:"amountCents" example:"450000"`
	Reason      string `json:"reason" example:"requested by customer"`
}

type WebhookResponseDTO struct {
	Result string `json:"result" example:"applied"`
}
