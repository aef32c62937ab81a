package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/GlebRadaev/coursepay/docs"
	adminhandlers "github.com/GlebRadaev/coursepay/internal/handlers/admin"
	ordershandlers "github.com/GlebRadaev/coursepay/internal/handlers/orders"
	vouchershandlers "github.com/GlebRadaev/coursepay/internal/handlers/vouchers"
	wallethandlers "github.com/GlebRadaev/coursepay/internal/handlers/wallet"
	webhookhandlers "github.com/GlebRadaev/coursepay/internal/handlers/webhooks"
	"github.com/GlebRadaev/coursepay/internal/service"
	"github.com/GlebRadaev/coursepay/pkg/auth"
)

//go:generate mockgen -source=handlers.go -destination=mock_handlers.go -package=handlers

type OrderHandler interface {
	CreateOrder(w http.ResponseWriter, r *http.Request)
	ListOrders(w http.ResponseWriter, r *http.Request)
	GetOrder(w http.ResponseWriter, r *http.Request)
	CancelOrder(w http.ResponseWriter, r *http.Request)
	DeleteOrder(w http.ResponseWriter, r *http.Request)
	Checkout(w http.ResponseWriter, r *http.Request)
	ListPayments(w http.ResponseWriter, r *http.Request)
	PreviewVoucher(w http.ResponseWriter, r *http.Request)
}

type VoucherHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Deactivate(w http.ResponseWriter, r *http.Request)
}

type WalletHandler interface {
	GetBalance(w http.ResponseWriter, r *http.Request)
	ListTransactions(w http.ResponseWriter, r *http.Request)
	CreateWithdrawal(w http.ResponseWriter, r *http.Request)
	ListWithdrawals(w http.ResponseWriter, r *http.Request)
	GetWithdrawal(w http.ResponseWriter, r *http.Request)
	CancelWithdrawal(w http.ResponseWriter, r *http.Request)
}

type AdminHandler interface {
	ListPending(w http.ResponseWriter, r *http.Request)
	Approve(w http.ResponseWriter, r *http.Request)
	Reject(w http.ResponseWriter, r *http.Request)
	RequestRefund(w http.ResponseWriter, r *http.Request)
	Audit(w http.ResponseWriter, r *http.Request)
	Unfreeze(w http.ResponseWriter, r *http.Request)
}

type WebhookHandler interface {
	Payment(w http.ResponseWriter, r *http.Request)
	Payout(w http.ResponseWriter, r *http.Request)
}

type Handlers struct {
	OrderHandler   OrderHandler
	VoucherHandler VoucherHandler
	WalletHandler  WalletHandler
	AdminHandler   AdminHandler
	WebhookHandler WebhookHandler

	jwt auth.JWTServiceInterface
}

func New(s *service.Services, payouts webhookhandlers.PayoutVerifier, jwt auth.JWTServiceInterface) *Handlers {
	return &Handlers{
		OrderHandler:   ordershandlers.New(s.OrderService, s.PaymentService),
		VoucherHandler: vouchershandlers.New(s.VoucherService),
		WalletHandler:  wallethandlers.New(s.WalletService, s.WithdrawalService),
		AdminHandler:   adminhandlers.New(s.WithdrawalService, s.PaymentService, s.WalletService),
		WebhookHandler: webhookhandlers.New(s.PaymentService, payouts, s.WithdrawalService),
		jwt:            jwt,
	}
}

func (h *Handlers) InitRoutes(r chi.Router) chi.Router {
	r.Use(
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("doc.json"),
	))

	r.Route("/api", func(r chi.Router) {
		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/payments/{provider}", h.WebhookHandler.Payment)
			r.Post("/payouts", h.WebhookHandler.Payout)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(h.jwt))

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", h.OrderHandler.CreateOrder)
				r.Get("/", h.OrderHandler.ListOrders)
				r.Route("/{number}", func(r chi.Router) {
					r.Get("/", h.OrderHandler.GetOrder)
					r.Delete("/", h.OrderHandler.DeleteOrder)
					r.Post("/cancel", h.OrderHandler.CancelOrder)
					r.Post("/checkout", h.OrderHandler.Checkout)
					r.Get("/payments", h.OrderHandler.ListPayments)
				})
			})
			r.Post("/vouchers/preview", h.OrderHandler.PreviewVoucher)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleInstructor))
				r.Route("/instructor/vouchers", func(r chi.Router) {
					r.Post("/", h.VoucherHandler.Create)
					r.Get("/", h.VoucherHandler.List)
					r.Post("/{id}/deactivate", h.VoucherHandler.Deactivate)
				})
				r.Route("/wallet", func(r chi.Router) {
					r.Get("/balance", h.WalletHandler.GetBalance)
					r.Get("/transactions", h.WalletHandler.ListTransactions)
				})
				r.Route("/withdrawals", func(r chi.Router) {
					r.Post("/", h.WalletHandler.CreateWithdrawal)
					r.Get("/", h.WalletHandler.ListWithdrawals)
					r.Get("/{id}", h.WalletHandler.GetWithdrawal)
					r.Post("/{id}/cancel", h.WalletHandler.CancelWithdrawal)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(auth.RequireRole(auth.RoleAdmin))
				r.Get("/withdrawals", h.AdminHandler.ListPending)
				r.Post("/withdrawals/{id}/approve", h.AdminHandler.Approve)
				r.Post("/withdrawals/{id}/reject", h.AdminHandler.Reject)
				r.Post("/orders/{number}/refunds", h.AdminHandler.RequestRefund)
				r.Get("/wallets/{userID}/audit", h.AdminHandler.Audit)
				r.Post("/wallets/{userID}/unfreeze", h.AdminHandler.Unfreeze)
			})
		})
	})

	return r
}
