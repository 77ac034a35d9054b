package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"

	"reconciler/internal/domain/interfaces"
)

const walletKeyPrefix = "reconciler:wallet:"

// walletEntry is what the cache stores. Found is false for ids that are not wallets.
type walletEntry struct {
	Found  bool              `json:"found"`
	Wallet interfaces.Wallet `json:"wallet"`
}

// WalletResolver looks wallets up on the account service. When a Redis client is
// given, answers, including "not a wallet", are cached for ttl.
type WalletResolver struct {
	client  *Client
	baseURL string
	cache   *redis.Client
	ttl     time.Duration
}

func NewWalletResolver(client *Client, baseURL string, cache *redis.Client, ttl time.Duration) *WalletResolver {
	return &WalletResolver{client: client, baseURL: baseURL, cache: cache, ttl: ttl}
}

func (r *WalletResolver) ResolveWallet(ctx context.Context, walletID string) (interfaces.Wallet, bool, error) {
	if entry, ok := r.cached(ctx, walletID); ok {
		return entry.Wallet, entry.Found, nil
	}

	var wallet interfaces.Wallet
	found, err := r.client.getJSON(ctx, r.baseURL+"/"+url.PathEscape(walletID), &wallet)
	if err != nil {
		return interfaces.Wallet{}, false, err
	}
	if found && wallet.ID == "" {
		wallet.ID = walletID
	}
	r.remember(ctx, walletID, walletEntry{Found: found, Wallet: wallet})
	return wallet, found, nil
}

func (r *WalletResolver) cached(ctx context.Context, walletID string) (walletEntry, bool) {
	if r.cache == nil {
		return walletEntry{}, false
	}
	raw, err := r.cache.Get(ctx, walletKeyPrefix+walletID).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.client.logger.WithError(err).Debug("wallet cache read failed")
		}
		return walletEntry{}, false
	}
	var entry walletEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return walletEntry{}, false
	}
	return entry, true
}

func (r *WalletResolver) remember(ctx context.Context, walletID string, entry walletEntry) {
	if r.cache == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, walletKeyPrefix+walletID, raw, r.ttl).Err(); err != nil {
		r.client.logger.WithError(err).Debug("wallet cache write failed")
	}
}
