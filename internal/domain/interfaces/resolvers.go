package interfaces

import (
	"context"

	"reconciler/internal/domain/entity/report"
)

// Wallet is what the account service knows about a wallet id.
type Wallet struct {
	ID     string `json:"id"`
	UserID string `json:"clientId"`
	Type   string `json:"type"`
}

type WalletResolver interface {
	ResolveWallet(ctx context.Context, walletID string) (Wallet, bool, error)
}

type AssetPairLister interface {
	AssetPairIDs(ctx context.Context) ([]string, error)
}

type ReportPublisher interface {
	PublishRun(ctx context.Context, summary report.RunSummary) error
}
