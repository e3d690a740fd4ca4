package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"bargain/pkg/clock"
	"bargain/pkg/logger"
	"bargain/pkg/model"
)

type failingCache struct{}

var errRefused = errors.New("connection refused")

func (failingCache) Get(context.Context, string) ([]byte, error) {
	return nil, errRefused
}

func (failingCache) Set(context.Context, string, []byte, time.Duration) error {
	return errRefused
}

func (failingCache) Delete(context.Context, ...string) error {
	return errRefused
}

func (failingCache) Ping(context.Context) error {
	return errRefused
}

func TestMemory_TTLExpiry(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewMemory(clk)
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := m.Set(ctx, "forever", []byte("v"), 0); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	clk.Advance(59 * time.Second)
	if got, err := m.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Fatalf("Get() before expiry = %q, %v", got, err)
	}

	clk.Advance(time.Second)
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("Get() after expiry error = %v, want ErrMiss", err)
	}
	if _, err := m.Get(ctx, "forever"); err != nil {
		t.Errorf("Get() without ttl error = %v", err)
	}
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory(clock.Real())
	ctx := context.Background()
	buf := []byte("abc")
	_ = m.Set(ctx, "k", buf, 0)
	buf[0] = 'z'

	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value mutated through caller slice: %q", got)
	}
	got[1] = 'z'
	again, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("stored value mutated through returned slice: %q", again)
	}
}

func TestReader_Rates(t *testing.T) {
	m := NewMemory(clock.Real())
	r := NewReader(m, logger.Discard())
	ctx := context.Background()

	if _, ok := r.Rates(ctx, "HTL-1"); ok {
		t.Fatal("Rates() on empty cache reported a hit")
	}

	snaps := []model.SupplierSnapshot{{SupplierID: "hbd", Net: 100, Currency: "USD", InventoryState: model.InventoryAvailable}}
	if err := PutRates(ctx, m, "HTL-1", snaps); err != nil {
		t.Fatalf("PutRates() error = %v", err)
	}
	got, ok := r.Rates(ctx, "HTL-1")
	if !ok || len(got) != 1 || got[0].SupplierID != "hbd" {
		t.Fatalf("Rates() = %+v, %v", got, ok)
	}

	_ = m.Set(ctx, RatesKey("HTL-2"), []byte("{not json"), RatesTTL)
	if _, ok := r.Rates(ctx, "HTL-2"); ok {
		t.Error("Rates() accepted a corrupt entry")
	}
}

func TestReader_Flag(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clock.Real())
	r := NewReader(m, logger.Discard())

	tests := []struct {
		name  string
		value string
		set   bool
		want  bool
	}{
		{name: "unset defaults on", want: true},
		{name: "explicit false", value: "false", set: true, want: false},
		{name: "explicit true", value: "true", set: true, want: true},
		{name: "garbage defaults on", value: "maybe", set: true, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = m.Delete(ctx, FlagKey(FlagBargainEnabled))
			if tt.set {
				_ = m.Set(ctx, FlagKey(FlagBargainEnabled), []byte(tt.value), 0)
			}
			if got := r.Flag(ctx, FlagBargainEnabled); got != tt.want {
				t.Errorf("Flag() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReader_OutageIsAMiss(t *testing.T) {
	r := NewReader(failingCache{}, logger.Discard())
	ctx := context.Background()

	if _, ok := r.Rates(ctx, "x"); ok {
		t.Error("Rates() hit during outage")
	}
	if !r.Flag(ctx, FlagBargainEnabled) {
		t.Error("Flag() should default to enabled during outage")
	}
	if r.PromoDisabled(ctx, "SAVE20") {
		t.Error("PromoDisabled() should default to false during outage")
	}
}

func TestPromoDisabled_CaseInsensitive(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(clock.Real())
	r := NewReader(m, logger.Discard())

	if err := SetPromoDisabled(ctx, m, "save20", true); err != nil {
		t.Fatalf("SetPromoDisabled() error = %v", err)
	}
	if !r.PromoDisabled(ctx, "SAVE20") {
		t.Error("PromoDisabled(SAVE20) = false after disabling save20")
	}
}
