// Package payments implements payment.Provider for Lightning zaps: an HTTP
// client for the zap gateway and a simulated provider for development.
package payments

import (
	"strconv"
	"time"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/payment"
)

// ProviderName is the entitlement source recorded for zap payments.
const ProviderName = "nostr-zap"

// KindZapRequest is the nostr event kind of a zap request.
const KindZapRequest = 9734

// ZapRequest is an unsigned nostr zap request event.
type ZapRequest struct {
	Kind      int        `json:"kind"`
	CreatedAt int64      `json:"created_at"`
	Tags      [][]string `json:"tags"`
	Content   string     `json:"content"`
}

// ZapConfig holds the values every zap request carries.
type ZapConfig struct {
	// AppPubkey receives the zap.
	AppPubkey string

	// Relays lists where the zap receipt should be published.
	Relays []string
}

// BuildZapRequest builds the zap request for req. The amount tag is in sats.
func BuildZapRequest(cfg ZapConfig, req payment.Request, now time.Time) ZapRequest {
	relays := append([]string{"relays"}, cfg.Relays...)
	return ZapRequest{
		Kind:      KindZapRequest,
		CreatedAt: now.Unix(),
		Tags: [][]string{
			relays,
			{"amount", strconv.Itoa(req.AmountSats)},
			{"p", cfg.AppPubkey},
			{"t", "zaptalk"},
			{"sku", req.SkuID},
			{"user", req.Payer},
		},
		Content: req.Memo,
	}
}

// Tag returns the first value of the named tag.
func (z ZapRequest) Tag(name string) (string, bool) {
	for _, t := range z.Tags {
		if len(t) > 1 && t[0] == name {
			return t[1], true
		}
	}
	return "", false
}
