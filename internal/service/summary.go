package service

import "github.com/fjod/storefront-cart/internal/domain"

// Items returns a copy of the cart lines.
func (s *CartStore) Items() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.LineItem, len(s.state.Items))
	copy(items, s.state.Items)
	return items
}

func (s *CartStore) Options() domain.CartOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Options.Clone()
}

// Totals are recomputed on every call.
func (s *CartStore) Totals() domain.CartTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pricing.Compute(s.state.Items, s.state.Options)
}

func (s *CartStore) Validation() domain.CartValidation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validation
}

func (s *CartStore) Summary() domain.CartSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *CartStore) summaryLocked() domain.CartSummary {
	totals := s.pricing.Compute(s.state.Items, s.state.Options)
	return domain.NewSummary(s.state.Items, totals, s.validation)
}

func (s *CartStore) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// LastError is the message of the most recent failed discount application.
func (s *CartStore) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// HasProduct reports whether any line references productID.
func (s *CartStore) HasProduct(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.HasProduct(productID)
}

// View is a consistent snapshot of everything a client renders.
type View struct {
	ID        string             `json:"id"`
	Items     []domain.LineItem  `json:"items"`
	Options   domain.CartOptions `json:"options"`
	Summary   domain.CartSummary `json:"summary"`
	IsOpen    bool               `json:"isOpen"`
	LastError string             `json:"lastError,omitempty"`
}

func (s *CartStore) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]domain.LineItem, len(s.state.Items))
	copy(items, s.state.Items)
	return View{
		ID:        s.id,
		Items:     items,
		Options:   s.state.Options.Clone(),
		Summary:   s.summaryLocked(),
		IsOpen:    s.open,
		LastError: s.lastError,
	}
}
