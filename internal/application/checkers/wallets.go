package checkers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reconciler/internal/domain/entity/reconciled"
	"reconciler/internal/domain/interfaces"
)

// WalletMapper records which user owns each wallet seen in trades. Ids the account
// service does not know as wallets are taken to be user ids. Lookups failing on the
// account service are skipped and retried on the next run.
type WalletMapper struct {
	resolver interfaces.WalletResolver
	db       *gorm.DB
	logger   *logrus.Entry

	wallets map[string]string
	users   map[string]struct{}
	failed  int
}

func NewWalletMapper(resolver interfaces.WalletResolver, db *gorm.DB, logger *logrus.Logger) *WalletMapper {
	m := &WalletMapper{
		resolver: resolver,
		db:       db,
		logger:   logger.WithField("component", "wallet_mapper"),
	}
	m.Reset()
	return m
}

func (m *WalletMapper) Reset() {
	m.wallets = make(map[string]string)
	m.users = make(map[string]struct{})
	m.failed = 0
}

// Map resolves the owners of walletIDs, storing new wallets, and returns the
// wallet to user mapping of every id known to be a wallet.
func (m *WalletMapper) Map(ctx context.Context, walletIDs []string) (map[string]string, error) {
	var fresh []reconciled.UserWallet
	for _, id := range walletIDs {
		if id == "" {
			continue
		}
		if _, ok := m.wallets[id]; ok {
			continue
		}
		if _, ok := m.users[id]; ok {
			continue
		}
		wallet, found, err := m.resolver.ResolveWallet(ctx, id)
		if err != nil {
			m.failed++
			m.logger.WithError(err).WithField("wallet", id).Warn("wallet lookup failed")
			continue
		}
		if !found {
			m.users[id] = struct{}{}
			continue
		}
		m.wallets[id] = wallet.UserID
		fresh = append(fresh, reconciled.UserWallet{ID: id, UserID: wallet.UserID, Type: wallet.Type})
	}

	if len(fresh) > 0 {
		err := m.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&fresh).Error
		if err != nil {
			return nil, fmt.Errorf("store user wallets: %w", err)
		}
		m.logger.WithField("count", len(fresh)).Info("stored user wallets")
	}

	owners := make(map[string]string, len(walletIDs))
	for _, id := range walletIDs {
		if user, ok := m.wallets[id]; ok {
			owners[id] = user
		}
	}
	return owners, nil
}

// Stats returns the number of wallets, plain user ids and failed lookups seen this run.
func (m *WalletMapper) Stats() (wallets, users, failed int) {
	return len(m.wallets), len(m.users), m.failed
}
