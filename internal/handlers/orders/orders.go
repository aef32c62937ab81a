package orders

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/GlebRadaev/coursepay/internal/domain"
	"github.com/GlebRadaev/coursepay/internal/dto"
	"github.com/GlebRadaev/coursepay/internal/gateway"
	"github.com/GlebRadaev/coursepay/internal/service/orderservice"
	"github.com/GlebRadaev/coursepay/internal/service/paymentservice"
	"github.com/GlebRadaev/coursepay/internal/service/voucherservice"
	"github.com/GlebRadaev/coursepay/pkg/auth"
	"github.com/GlebRadaev/coursepay/pkg/utils"
	"github.com/GlebRadaev/coursepay/pkg/validate"
)

//go:generate mockgen -source=orders.go -destination=mock_orders.go -package=orders

type Service interface {
	CreateOrder(ctx context.Context, userID int64, courseIDs []int64, voucherCode string) (*domain.Order, error)
	GetOrder(ctx context.Context, userID int64, orderNumber string) (*domain.Order, error)
	ListOrders(ctx context.Context, userID int64) ([]domain.Order, error)
	CancelOrder(ctx context.Context, userID int64, orderNumber string) error
	DeleteOrder(ctx context.Context, userID int64, orderNumber string) error
	PreviewVoucher(ctx context.Context, userID int64, courseIDs []int64, code string) (*voucherservice.ApplyResult, error)
}

type Payments interface {
	CreateCheckout(ctx context.Context, userID int64, orderNumber, provider, email string) (*paymentservice.Checkout, error)
	ListPayments(ctx context.Context, userID int64, orderNumber string) ([]domain.Payment, error)
}

type OrderHandler struct {
	orderService Service
	payments     Payments
}

func New(orderService Service, payments Payments) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		payments:     payments,
	}
}

func respondWithOrderError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orderservice.ErrEmptyCart):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, orderservice.ErrOrderNotFound), errors.Is(err, paymentservice.ErrOrderNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Order not found")
	case errors.Is(err, orderservice.ErrAlreadyOwned),
		errors.Is(err, orderservice.ErrOrderNotPending),
		errors.Is(err, orderservice.ErrOrderHasPayments),
		errors.Is(err, orderservice.ErrOrderSettled),
		errors.Is(err, paymentservice.ErrOrderNotPending),
		errors.Is(err, paymentservice.ErrCheckoutInProgress),
		errors.Is(err, voucherservice.ErrVoucherExhausted),
		errors.Is(err, voucherservice.ErrVoucherUnavailable):
		utils.RespondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orderservice.ErrCourseUnavailable),
		errors.Is(err, orderservice.ErrMixedCurrency),
		errors.Is(err, orderservice.ErrInvalidVoucher),
		errors.Is(err, orderservice.ErrNegativeTotal):
		utils.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, gateway.ErrUnknownProvider):
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, paymentservice.ErrProviderUnavailable):
		utils.RespondWithError(w, http.StatusBadGateway, "Payment provider unavailable, try again later")
	default:
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// orderNumber reads the {number} path parameter and writes a 422 when it fails the Luhn check.
func orderNumber(w http.ResponseWriter, r *http.Request) (string, bool) {
	number := chi.URLParam(r, "number")
	if !validate.IsLuna(number) {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid order number")
		return "", false
	}
	return number, true
}

// CreateOrder godoc
//
//	@Summary		Create an order
//	@Description	Price the cart from the catalog, apply an optional voucher and create a PENDING order.
//	@Tags			Orders
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.CreateOrderRequestDTO	true	"Cart"
//	@Success		201		{object}	dto.OrderResponseDTO
//	@Failure		400		{object}	utils.Response	"Malformed cart"
//	@Failure		401		{object}	utils.Response	"User not authorized"
//	@Failure		409		{object}	utils.Response	"Course already owned"
//	@Failure		422		{object}	utils.Response	"Course unavailable or voucher invalid"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Router			/api/orders [post]
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req dto.CreateOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.orderService.CreateOrder(r.Context(), userID, req.CourseIDs, req.VoucherCode)
	if err != nil {
		respondWithOrderError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusCreated, dto.NewOrderResponse(order))
}

// ListOrders godoc
//
//	@Summary		List orders
//	@Tags			Orders
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}		dto.OrderResponseDTO
//	@Success		204	{object}	utils.Response	"No data available"
//	@Failure		401	{object}	utils.Response	"User not authorized"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Router			/api/orders [get]
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	orders, err := h.orderService.ListOrders(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if len(orders) == 0 {
		utils.RespondWithError(w, http.StatusNoContent, "No data available")
		return
	}

	response := make([]dto.OrderResponseDTO, len(orders))
	for i := range orders {
		response[i] = dto.NewOrderResponse(&orders[i])
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// GetOrder godoc
//
//	@Summary	Get an order with its items
//	@Tags		Orders
//	@Security	BearerAuth
//	@Produce	json
//	@Param		number	path		string	true	"Order number"
//	@Success	200		{object}	dto.OrderResponseDTO
//	@Failure	404		{object}	utils.Response	"Order not found"
//	@Failure	422		{object}	utils.Response	"Invalid order number"
//	@Router		/api/orders/{number} [get]
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(w, r)
	if !ok {
		return
	}
	order, err := h.orderService.GetOrder(r.Context(), auth.UserID(r.Context()), number)
	if err != nil {
		respondWithOrderError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.NewOrderResponse(order))
}

// CancelOrder godoc
//
//	@Summary	Cancel a pending order
//	@Tags		Orders
//	@Security	BearerAuth
//	@Produce	json
//	@Param		number	path		string	true	"Order number"
//	@Success	200		{object}	utils.Response
//	@Failure	404		{object}	utils.Response	"Order not found"
//	@Failure	409		{object}	utils.Response	"Order is not pending"
//	@Router		/api/orders/{number}/cancel [post]
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(w, r)
	if !ok {
		return
	}
	if err := h.orderService.CancelOrder(r.Context(), auth.UserID(r.Context()), number); err != nil {
		respondWithOrderError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, utils.Response{Message: "order cancelled"})
}

// DeleteOrder godoc
//
//	@Summary	Delete an unpaid order without payment attempts
//	@Tags		Orders
//	@Security	BearerAuth
//	@Param		number	path	string	true	"Order number"
//	@Success	204
//	@Failure	404	{object}	utils.Response	"Order not found"
//	@Failure	409	{object}	utils.Response	"Order has payments"
//	@Router		/api/orders/{number} [delete]
func (h *OrderHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(w, r)
	if !ok {
		return
	}
	if err := h.orderService.DeleteOrder(r.Context(), auth.UserID(r.Context()), number); err != nil {
		respondWithOrderError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Checkout godoc
//
//	@Summary		Start a payment for an order
//	@Description	Opens (or reuses) a provider checkout session. Fully discounted orders are settled at once.
//	@Tags			Payments
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			number	path		string					true	"Order number"
//	@Param			request	body		dto.CheckoutRequestDTO	true	"Provider"
//	@Success		200		{object}	paymentservice.Checkout
//	@Failure		404		{object}	utils.Response	"Order not found"
//	@Failure		409		{object}	utils.Response	"Order not payable or checkout in progress"
//	@Failure		502		{object}	utils.Response	"Payment provider unavailable"
//	@Router			/api/orders/{number}/checkout [post]
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(w, r)
	if !ok {
		return
	}
	var req dto.CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	checkout, err := h.payments.CreateCheckout(r.Context(), auth.UserID(r.Context()), number, req.Provider, req.Email)
	if err != nil {
		respondWithOrderError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, checkout)
}

// ListPayments godoc
//
//	@Summary	List payment attempts of an order
//	@Tags		Payments
//	@Security	BearerAuth
//	@Produce	json
//	@Param		number	path	string	true	"Order number"
//	@Success	200		{array}	dto.PaymentResponseDTO
//	@Failure	404		{object}	utils.Response	"Order not found"
//	@Router		/api/orders/{number}/payments [get]
func (h *OrderHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	number, ok := orderNumber(w, r)
	if !ok {
		return
	}
	payments, err := h.payments.ListPayments(r.Context(), auth.UserID(r.Context()), number)
	if err != nil {
		respondWithOrderError(w, err)
		return
	}
	response := make([]dto.PaymentResponseDTO, len(payments))
	for i, p := range payments {
		response[i] = dto.PaymentResponseDTO{
			ID:          p.ID,
			Provider:    p.Provider,
			Status:      p.Status,
			AmountCents: p.AmountCents,
			Currency:    p.Currency,
			CreatedAt:   p.CreatedAt.Format(time.RFC3339),
		}
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// PreviewVoucher godoc
//
//	@Summary		Check a voucher against a cart
//	@Description	Validation only; the voucher is not consumed.
//	@Tags			Vouchers
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.VoucherPreviewRequestDTO	true	"Code and cart"
//	@Success		200		{object}	dto.VoucherPreviewResponseDTO
//	@Failure		400		{object}	utils.Response	"Malformed request"
//	@Failure		422		{object}	utils.Response	"Course unavailable"
//	@Router			/api/vouchers/preview [post]
func (h *OrderHandler) PreviewVoucher(w http.ResponseWriter, r *http.Request) {
	var req dto.VoucherPreviewRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.orderService.PreviewVoucher(r.Context(), auth.UserID(r.Context()), req.CourseIDs, req.Code)
	if err != nil {
		respondWithOrderError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.VoucherPreviewResponseDTO{
		Valid:         res.Valid,
		Message:       res.Message,
		TotalDiscount: res.TotalDiscount,
		Discounts:     res.Discounts,
	})
}
