// Package cart holds the buyer's cart lines and is the source of truth for
// which items need a prescription. It performs no network calls.
package cart

import (
	"context"
	"sync"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/telemetry"
	"github.com/shopspring/decimal"
)

// Persister saves the full cart after every mutation.
type Persister interface {
	SaveCart(ctx context.Context, items []domain.CartItem) error
}

// Store is a single-writer cart. Mutations persist before returning and
// roll back when persisting fails.
type Store struct {
	mu      sync.Mutex
	items   []domain.CartItem
	holder  string
	persist Persister
	metrics *telemetry.CheckoutMetrics
}

// NewStore restores a cart from items. Lines with a non-positive quantity are dropped.
func NewStore(items []domain.CartItem, persist Persister, metrics *telemetry.CheckoutMetrics) *Store {
	s := &Store{persist: persist, metrics: metrics}
	for _, it := range items {
		if it.Quantity >= 1 {
			s.items = append(s.items, it)
		}
	}
	return s
}

// Add merges item into the cart, accumulating quantity when the line exists.
// The stored name, price and prescription flag are refreshed from item.
func (s *Store) Add(ctx context.Context, item domain.CartItem, qty int) error {
	const op = "cart.add"

	if qty < 1 {
		return domain.WithOp(domain.ErrInvalidQuantity, op)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holder != "" {
		return domain.WithOp(domain.ErrCartLocked, op)
	}

	next := cloneItems(s.items)
	merged := false
	for i := range next {
		if next[i].ID == item.ID {
			next[i].Quantity += qty
			next[i].Name = item.Name
			next[i].UnitPrice = item.UnitPrice
			next[i].RequiresPrescription = item.RequiresPrescription
			merged = true
			break
		}
	}
	if !merged {
		item.Quantity = qty
		next = append(next, item)
	}

	err := s.commit(ctx, next)
	s.metrics.CartMutation("add", err)
	return err
}

// RemoveOne decrements the line for id, removing it at zero.
func (s *Store) RemoveOne(ctx context.Context, id int64) error {
	const op = "cart.remove_one"

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holder != "" {
		return domain.WithOp(domain.ErrCartLocked, op)
	}

	idx := -1
	for i := range s.items {
		if s.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.WithOp(domain.ErrCartItemNotFound, op)
	}

	next := cloneItems(s.items)
	if next[idx].Quantity > 1 {
		next[idx].Quantity--
	} else {
		next = append(next[:idx], next[idx+1:]...)
	}

	err := s.commit(ctx, next)
	s.metrics.CartMutation("remove", err)
	return err
}

// Clear empties the cart. While the cart is locked only the holder may clear it.
func (s *Store) Clear(ctx context.Context, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holder != "" && s.holder != owner {
		return domain.WithOp(domain.ErrCartLocked, "cart.clear")
	}

	err := s.commit(ctx, []domain.CartItem{})
	s.metrics.CartMutation("clear", err)
	return err
}

// Lock reserves the cart for owner. Re-locking by the same owner is a no-op.
func (s *Store) Lock(owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holder != "" && s.holder != owner {
		return domain.WithOp(domain.ErrCartLocked, "cart.lock")
	}
	s.holder = owner
	return nil
}

// Unlock releases the lock if owner holds it.
func (s *Store) Unlock(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.holder == owner {
		s.holder = ""
	}
}

// Locked reports whether a checkout holds the cart.
func (s *Store) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holder != ""
}

// Snapshot returns a copy of the cart lines in insertion order.
func (s *Store) Snapshot() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneItems(s.items)
}

// RequiresPrescription reports whether any line needs a prescription.
func (s *Store) RequiresPrescription() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range s.items {
		if it.RequiresPrescription {
			return true
		}
	}
	return false
}

// Total sums unit price times quantity over all lines.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CartTotal(s.items)
}

// Summary returns the lines with totals for display.
func (s *Store) Summary() domain.CartSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	rx := false
	for _, it := range s.items {
		count += it.Quantity
		rx = rx || it.RequiresPrescription
	}
	items := cloneItems(s.items)
	if items == nil {
		items = []domain.CartItem{}
	}
	return domain.CartSummary{
		Items:                items,
		Total:                domain.CartTotal(s.items),
		ItemCount:            count,
		RequiresPrescription: rx,
		Locked:               s.holder != "",
	}
}

// commit persists next and swaps it in. Callers hold s.mu.
func (s *Store) commit(ctx context.Context, next []domain.CartItem) error {
	if s.persist != nil {
		if err := s.persist.SaveCart(ctx, next); err != nil {
			return err
		}
	}
	s.items = next
	return nil
}

func cloneItems(items []domain.CartItem) []domain.CartItem {
	if items == nil {
		return nil
	}
	return append([]domain.CartItem(nil), items...)
}
