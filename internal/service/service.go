package service

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/GlebRadaev/coursepay/internal/config"
	"github.com/GlebRadaev/coursepay/internal/repo"
	"github.com/GlebRadaev/coursepay/internal/service/orderservice"
	"github.com/GlebRadaev/coursepay/internal/service/paymentservice"
	"github.com/GlebRadaev/coursepay/internal/service/voucherservice"
	"github.com/GlebRadaev/coursepay/internal/service/walletservice"
	"github.com/GlebRadaev/coursepay/internal/service/withdrawalservice"
)

// Deps are the outside systems the services talk to.
type Deps struct {
	Catalog  orderservice.Catalog
	Numbers  orderservice.NumberGenerator
	Gateways paymentservice.Gateways
	Locker   paymentservice.Locker
	Payouts  withdrawalservice.Payouts
}

type Services struct {
	OrderService      *orderservice.Service
	VoucherService    *voucherservice.Service
	PaymentService    *paymentservice.Service
	WalletService     *walletservice.Service
	WithdrawalService *withdrawalservice.Service
}

func New(cfg *config.Config, repos *repo.Repositories, deps Deps) (*Services, error) {
	fee, err := decimal.NewFromString(cfg.Business.PlatformFeePercent)
	if err != nil {
		return nil, fmt.Errorf("platform fee percent: %w", err)
	}
	if fee.IsNegative() || fee.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("platform fee percent out of range: %s", fee)
	}

	voucherService := voucherservice.New(repos.VoucherRepo)
	walletService := walletservice.New(repos.BalanceRepo, repos.TxManager, fee)
	orderService := orderservice.New(repos.OrderRepo, deps.Catalog, voucherService, deps.Numbers, repos.TxManager)
	paymentService := paymentservice.New(
		repos.PaymentRepo,
		repos.OrderRepo,
		voucherService,
		walletService,
		repos.EventRepo,
		repos.OutboxRepo,
		deps.Gateways,
		deps.Locker,
		repos.TxManager,
		paymentservice.URLs{Return: cfg.Checkout.ReturnURL, Cancel: cfg.Checkout.CancelURL},
	)
	withdrawalService := withdrawalservice.New(
		repos.WithdrawalRepo,
		walletService,
		repos.EventRepo,
		repos.OutboxRepo,
		deps.Payouts,
		repos.TxManager,
		cfg.Business.MinWithdrawalCents,
		cfg.Business.WithdrawalCurrency,
	)

	return &Services{
		OrderService:      orderService,
		VoucherService:    voucherService,
		PaymentService:    paymentService,
		WalletService:     walletService,
		WithdrawalService: withdrawalService,
	}, nil
}
