package cache

import (
	"context"
	"errors"
	"time"
)

var ErrMiss = errors.New("cache miss")

// Cache is a byte-oriented key/value store with per-key TTLs. A zero TTL
// stores the value without expiry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

const (
	PolicyActiveKey = "policy:active"

	PolicyTTL   = 24 * time.Hour
	RatesTTL    = 5 * time.Minute
	FeaturesTTL = time.Hour
	PromoTTL    = time.Hour
)

const (
	FlagBargainEnabled = "bargain_enabled"
	FlagPromosEnabled  = "promos_enabled"
)

func PolicyVersionKey(version string) string {
	return "policy:v:" + version
}

func RatesKey(canonicalKey string) string {
	return "rates:" + canonicalKey
}

func UserFeaturesKey(userID string) string {
	return "features:user:" + userID
}

func ProductFeaturesKey(canonical string) string {
	return "features:product:" + canonical
}

func PromoKey(code string) string {
	return "promo:" + code
}

func FlagKey(name string) string {
	return "flags:" + name
}
