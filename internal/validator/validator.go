package validator

import (
	"fmt"
	"time"

	"github.com/fjod/storefront-cart/internal/domain"
)

const DefaultExpiryWindow = 24 * time.Hour

// Validator checks a cart against the facts already attached to its items.
// It never calls out to the catalog.
type Validator struct {
	expiryWindow time.Duration
}

func New(expiryWindow time.Duration) *Validator {
	if expiryWindow <= 0 {
		expiryWindow = DefaultExpiryWindow
	}
	return &Validator{expiryWindow: expiryWindow}
}

func (v *Validator) Validate(items []domain.LineItem, opts domain.CartOptions, now time.Time) domain.CartValidation {
	var result domain.CartValidation

	for _, item := range items {
		switch item.Status() {
		case domain.ResolutionPending:
			result.Errors = append(result.Errors, issue(item, domain.IssueProductUnavailable, domain.SeverityError,
				"product details could not be loaded"))
			continue
		case domain.ResolutionUnavailable:
			if item.UnavailableReason() == domain.ReasonVariantMissing {
				result.Errors = append(result.Errors, issue(item, domain.IssueVariantUnavailable, domain.SeverityError,
					"selected variant is no longer available"))
			} else {
				result.Errors = append(result.Errors, issue(item, domain.IssueProductUnavailable, domain.SeverityError,
					"product is no longer available"))
			}
			continue
		}

		facts, _ := item.Facts()
		label := facts.Name
		if label == "" {
			label = item.ProductID
		}

		if !facts.InStock {
			result.Errors = append(result.Errors, issue(item, domain.IssueOutOfStock, domain.SeverityError,
				fmt.Sprintf("%s is out of stock", label)))
		}
		if facts.LowStock {
			result.Warnings = append(result.Warnings, issue(item, domain.IssueLowStock, domain.SeverityWarning,
				fmt.Sprintf("only a few of %s left in stock", label)))
		}

		if item.Quantity > facts.MaxQuantity {
			result.Errors = append(result.Errors, issue(item, domain.IssueQuantityLimit, domain.SeverityError,
				fmt.Sprintf("only %d of %s can be ordered", facts.MaxQuantity, label)))
		}

		if prev, changed := item.PriceChange(); changed {
			result.Warnings = append(result.Warnings, issue(item, domain.IssuePriceChanged, domain.SeverityWarning,
				fmt.Sprintf("price of %s changed from %s to %s", label, prev.StringFixed(2), facts.UnitPrice.StringFixed(2))))
		}
	}

	for _, d := range opts.AppliedDiscounts {
		if d.ExpiresAt == nil {
			continue
		}
		if d.ExpiresAt.Sub(now) <= v.expiryWindow {
			result.Warnings = append(result.Warnings, domain.ValidationIssue{
				DiscountCode: d.Code,
				Code:         domain.IssueDiscountExpiring,
				Severity:     domain.SeverityWarning,
				Message:      fmt.Sprintf("discount %s expires at %s", d.Code, d.ExpiresAt.Format(time.RFC3339)),
			})
		}
	}

	return result
}

func issue(item domain.LineItem, code domain.IssueCode, severity domain.Severity, msg string) domain.ValidationIssue {
	return domain.ValidationIssue{
		ItemID:   item.ID,
		Code:     code,
		Severity: severity,
		Message:  msg,
	}
}
