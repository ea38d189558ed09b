package domain

import (
	"context"
	"time"
)

// FundingTarget is a deposit address issued by the wallet service for a
// specific amount and currency.
type FundingTarget struct {
	Ref       string
	Address   string
	Currency  string
	Amount    int64
	ExpiresAt time.Time
}

// WalletService is the external funding collaborator. Deposit confirmations
// arrive asynchronously as DepositEvents, not through this interface.
type WalletService interface {
	IssueFundingTarget(ctx context.Context, amount int64, currency string) (FundingTarget, error)
}

// RateService converts a USD-cent amount into the smallest unit of the
// target currency. Implementations round up so the payer never under-funds.
type RateService interface {
	Convert(ctx context.Context, amountUSDCents int64, toCurrency string) (int64, error)
}
