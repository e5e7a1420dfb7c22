package coupon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/urbanpos/internal/model"
	"github.com/mmeshcher/urbanpos/internal/repository"
)

type stubRegistry struct {
	coupons map[string]model.Coupon
	err     error
	lastKey string
}

func (s *stubRegistry) FindCouponByCode(_ context.Context, code string) (*model.Coupon, error) {
	s.lastKey = code
	if s.err != nil {
		return nil, s.err
	}
	c, ok := s.coupons[code]
	if !ok {
		return nil, repository.ErrCouponNotFound
	}
	return &c, nil
}

var now = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func valid(code string) model.Coupon {
	return model.Coupon{
		ID:             code,
		Code:           code,
		DiscountType:   model.DiscountPercentage,
		DiscountValue:  decimal.NewFromInt(10),
		ExpirationDate: now.Add(24 * time.Hour),
		UsageLimit:     5,
		UsageCount:     1,
		IsActive:       true,
	}
}

func TestResolve(t *testing.T) {
	inactive := valid("OFF")
	inactive.IsActive = false

	expired := valid("OLD")
	expired.ExpirationDate = now.Add(-time.Minute)

	used := valid("USED")
	used.UsageCount = used.UsageLimit

	// Неактивность проверяется раньше срока действия.
	inactiveExpired := valid("BOTH")
	inactiveExpired.IsActive = false
	inactiveExpired.ExpirationDate = now.Add(-time.Minute)

	registry := &stubRegistry{coupons: map[string]model.Coupon{
		"SAVE10": valid("SAVE10"),
		"OFF":    inactive,
		"OLD":    expired,
		"USED":   used,
		"BOTH":   inactiveExpired,
	}}

	tests := []struct {
		name    string
		code    string
		wantErr error
	}{
		{name: "valid", code: "SAVE10"},
		{name: "valid lower case", code: "  save10 "},
		{name: "unknown", code: "NOPE", wantErr: ErrInvalidCode},
		{name: "empty", code: "", wantErr: ErrInvalidCode},
		{name: "inactive", code: "off", wantErr: ErrInactive},
		{name: "expired", code: "OLD", wantErr: ErrExpired},
		{name: "limit reached", code: "USED", wantErr: ErrLimitReached},
		{name: "inactive wins over expired", code: "BOTH", wantErr: ErrInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := Resolve(context.Background(), tt.code, registry, now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, c)
				assert.True(t, IsRejection(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "SAVE10", c.Code)
		})
	}
}

func TestResolve_NormalizesBeforeLookup(t *testing.T) {
	registry := &stubRegistry{coupons: map[string]model.Coupon{}}
	_, _ = Resolve(context.Background(), "summer", registry, now)
	assert.Equal(t, "SUMMER", registry.lastKey)
}

func TestResolve_StoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	registry := &stubRegistry{err: storeErr}

	_, err := Resolve(context.Background(), "SAVE10", registry, now)
	require.ErrorIs(t, err, storeErr)
	assert.False(t, IsRejection(err))
}

func TestCheck_ExpiresAtExactInstant(t *testing.T) {
	c := valid("EDGE")
	c.ExpirationDate = now
	assert.NoError(t, Check(&c, now))
	assert.ErrorIs(t, Check(&c, now.Add(time.Nanosecond)), ErrExpired)
}

func TestReasonAndStatus(t *testing.T) {
	assert.Equal(t, "invalid_code", Reason(ErrInvalidCode))
	assert.Equal(t, "expired", Reason(ErrExpired))
	assert.Equal(t, "", Reason(errors.New("boom")))

	c := valid("X")
	assert.Equal(t, "Active", Status(c, now))
	c.UsageCount = c.UsageLimit
	assert.Equal(t, "Used Up", Status(c, now))
}
