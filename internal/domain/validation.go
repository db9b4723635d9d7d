package domain

import "encoding/json"

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type IssueCode string

const (
	IssueOutOfStock         IssueCode = "out_of_stock"
	IssueQuantityLimit      IssueCode = "quantity_limit"
	IssueProductUnavailable IssueCode = "product_unavailable"
	IssueVariantUnavailable IssueCode = "variant_unavailable"
	IssueLowStock           IssueCode = "low_stock"
	IssuePriceChanged       IssueCode = "price_changed"
	IssueDiscountExpiring   IssueCode = "discount_expiring"
)

type ValidationIssue struct {
	ItemID       string    `json:"itemId,omitempty"`
	DiscountCode string    `json:"discountCode,omitempty"`
	Code         IssueCode `json:"code"`
	Severity     Severity  `json:"severity"`
	Message      string    `json:"message"`
}

// CartValidation holds blocking errors and non-blocking warnings.
type CartValidation struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
}

func (v CartValidation) IsValid() bool {
	return len(v.Errors) == 0
}

// HasError reports whether any blocking issue carries code.
func (v CartValidation) HasError(code IssueCode) bool {
	for _, issue := range v.Errors {
		if issue.Code == code {
			return true
		}
	}
	return false
}

func (v CartValidation) HasWarning(code IssueCode) bool {
	for _, issue := range v.Warnings {
		if issue.Code == code {
			return true
		}
	}
	return false
}

func (v CartValidation) MarshalJSON() ([]byte, error) {
	errs, warns := v.Errors, v.Warnings
	if errs == nil {
		errs = []ValidationIssue{}
	}
	if warns == nil {
		warns = []ValidationIssue{}
	}
	return json.Marshal(struct {
		IsValid  bool              `json:"isValid"`
		Errors   []ValidationIssue `json:"errors"`
		Warnings []ValidationIssue `json:"warnings"`
	}{v.IsValid(), errs, warns})
}
