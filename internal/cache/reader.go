package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"bargain/pkg/logger"
	"bargain/pkg/model"
)

type UserFeatures struct {
	Style      model.BargainStyle `json:"style,omitempty"`
	AcceptRate float64            `json:"accept_rate,omitempty"`
}

type ProductFeatures struct {
	Popularity float64 `json:"popularity"`
}

type PromoState struct {
	Disabled bool `json:"disabled"`
}

// Reader is the read-only view negotiation rounds use. Outages and decode
// failures are reported as misses so callers fall back to the
// authoritative source.
type Reader struct {
	cache Cache
	log   *logger.Logger
}

func NewReader(c Cache, log *logger.Logger) *Reader {
	return &Reader{cache: c, log: log}
}

func (r *Reader) getJSON(ctx context.Context, key string, dst any) bool {
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			r.log.Warn("Cache read failed, using fallback", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		r.log.Warn("Cache entry is corrupt, ignoring", "key", key, "error", err)
		return false
	}
	return true
}

func (r *Reader) Rates(ctx context.Context, canonicalKey string) ([]model.SupplierSnapshot, bool) {
	var snaps []model.SupplierSnapshot
	if !r.getJSON(ctx, RatesKey(canonicalKey), &snaps) || len(snaps) == 0 {
		return nil, false
	}
	return snaps, true
}

func (r *Reader) UserFeatures(ctx context.Context, userID string) (UserFeatures, bool) {
	var f UserFeatures
	if userID == "" {
		return f, false
	}
	ok := r.getJSON(ctx, UserFeaturesKey(userID), &f)
	return f, ok
}

func (r *Reader) ProductFeatures(ctx context.Context, canonicalKey string) (ProductFeatures, bool) {
	var f ProductFeatures
	ok := r.getJSON(ctx, ProductFeaturesKey(canonicalKey), &f)
	return f, ok
}

// PromoDisabled reports whether operators switched a promo code off
// without publishing a new policy.
func (r *Reader) PromoDisabled(ctx context.Context, code string) bool {
	var st PromoState
	if !r.getJSON(ctx, PromoKey(strings.ToUpper(code)), &st) {
		return false
	}
	return st.Disabled
}

// Flag reads a boolean feature flag. Flags default to enabled when unset
// or unreadable.
func (r *Reader) Flag(ctx context.Context, name string) bool {
	raw, err := r.cache.Get(ctx, FlagKey(name))
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			r.log.Warn("Flag read failed, assuming enabled", "flag", name, "error", err)
		}
		return true
	}
	enabled, err := strconv.ParseBool(strings.TrimSpace(string(raw)))
	if err != nil {
		r.log.Warn("Flag value is not a boolean, assuming enabled", "flag", name, "value", string(raw))
		return true
	}
	return enabled
}

func PutRates(ctx context.Context, c Cache, canonicalKey string, snaps []model.SupplierSnapshot) error {
	raw, err := json.Marshal(snaps)
	if err != nil {
		return err
	}
	return c.Set(ctx, RatesKey(canonicalKey), raw, RatesTTL)
}

func PutUserFeatures(ctx context.Context, c Cache, userID string, f UserFeatures) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.Set(ctx, UserFeaturesKey(userID), raw, FeaturesTTL)
}

func PutProductFeatures(ctx context.Context, c Cache, canonicalKey string, f ProductFeatures) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.Set(ctx, ProductFeaturesKey(canonicalKey), raw, FeaturesTTL)
}

func SetPromoDisabled(ctx context.Context, c Cache, code string, disabled bool) error {
	raw, err := json.Marshal(PromoState{Disabled: disabled})
	if err != nil {
		return err
	}
	return c.Set(ctx, PromoKey(strings.ToUpper(code)), raw, PromoTTL)
}

func SetFlag(ctx context.Context, c Cache, name string, enabled bool) error {
	return c.Set(ctx, FlagKey(name), []byte(strconv.FormatBool(enabled)), 0)
}
