package redisx

import (
	"fmt"
	"time"
)

const (
	// Checkout idempotency: idem:checkout:{buyer_id}:{key} -> "inflight" | result JSON
	KeyIdemCheckout = "idem:checkout:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLInflight    = 2 * time.Minute
	TTLDedup       = 48 * time.Hour
)

func IdemCheckoutKey(key string) string { return fmt.Sprintf(KeyIdemCheckout, key) }

func DedupKey(service, id string) string { return fmt.Sprintf(KeyDedup, service, id) }
