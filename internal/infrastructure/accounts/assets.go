package accounts

import (
	"context"
	"fmt"
	"sort"
)

type assetPair struct {
	ID       string `json:"id"`
	Disabled bool   `json:"isDisabled"`
}

// AssetPairs lists the asset pairs known to the asset service.
type AssetPairs struct {
	client *Client
	url    string
}

func NewAssetPairs(client *Client, url string) *AssetPairs {
	return &AssetPairs{client: client, url: url}
}

// AssetPairIDs returns the sorted ids of every enabled asset pair.
func (a *AssetPairs) AssetPairIDs(ctx context.Context) ([]string, error) {
	var pairs []assetPair
	found, err := a.client.getJSON(ctx, a.url, &pairs)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("asset pairs not found at %s", a.url)
	}
	ids := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.ID != "" && !p.Disabled {
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
