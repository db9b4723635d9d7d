package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fjod/storefront-cart/internal/domain"
	"go.uber.org/zap"
)

const (
	ErrMsgCartClosed         = "Cart is closed"
	ErrMsgCodeRequired       = "Discount code is required"
	ErrMsgCartEmpty          = "Cart is empty"
	ErrMsgAlreadyApplied     = "Discount code already applied"
	ErrMsgInvalidCode        = "Invalid discount code"
	ErrMsgExpiredCode        = "Discount code has expired"
	ErrMsgLookupFailed       = "Unable to verify discount code, please try again"
	errMsgMinimumNotReachedF = "Minimum order amount of %s required"
)

// ApplyDiscountCode attaches a discount code to the cart. It never returns
// an error: on failure it returns false and LastError explains why.
func (s *CartStore) ApplyDiscountCode(ctx context.Context, code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		s.lastError = ErrMsgCartClosed
		return false
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	switch {
	case code == "":
		s.lastError = ErrMsgCodeRequired
		return false
	case len(s.state.Items) == 0:
		s.lastError = ErrMsgCartEmpty
		return false
	case s.state.Options.HasDiscount(code):
		s.lastError = ErrMsgAlreadyApplied
		return false
	}

	rule, err := s.discounts.FindDiscount(ctx, code)
	if errors.Is(err, domain.ErrDiscountNotFound) {
		s.lastError = ErrMsgInvalidCode
		return false
	}
	if err != nil {
		s.log.Warn("discount lookup failed", zap.String("code", code), zap.Error(err))
		s.lastError = ErrMsgLookupFailed
		return false
	}

	now := s.now()
	if rule.IsExpired(now) {
		s.lastError = ErrMsgExpiredCode
		return false
	}

	subtotal := s.pricing.Subtotal(s.state.Items)
	if subtotal.LessThan(rule.MinimumAmount) {
		s.lastError = fmt.Sprintf(errMsgMinimumNotReachedF, rule.MinimumAmount.StringFixed(2))
		return false
	}

	amount := s.pricing.DiscountAmount(rule, subtotal)
	s.state.Options.AppliedDiscounts = append(s.state.Options.AppliedDiscounts, domain.AppliedDiscount{
		Code:      code,
		Type:      rule.Type,
		Value:     rule.Value,
		Amount:    amount,
		AppliedAt: now,
		ExpiresAt: rule.ExpiresAt,
	})
	s.lastError = ""

	s.commit(ctx, domain.EventDiscountApplied, map[string]any{
		"code":   code,
		"amount": amount.StringFixed(2),
	})
	return true
}

// RemoveDiscount detaches the discount with exactly this code, if applied.
func (s *CartStore) RemoveDiscount(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrStoreClosed
	}

	discounts := s.state.Options.AppliedDiscounts
	for i, d := range discounts {
		if d.Code != code {
			continue
		}
		s.state.Options.AppliedDiscounts = append(discounts[:i:i], discounts[i+1:]...)
		s.commit(ctx, domain.EventDiscountRemoved, map[string]any{
			"code":   code,
			"amount": d.Amount.StringFixed(2),
		})
		return nil
	}
	return nil
}
