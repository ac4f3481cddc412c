// Package memrepo provides in-memory market repositories for tests.
package memrepo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/adeilh/unimart/market"
)

// Products is a market.ProductRepository held in a map. Reads counts the
// FindByID, Find and Count calls that reached it.
type Products struct {
	mu    sync.RWMutex
	items map[string]market.Product
	Reads atomic.Int64
}

var _ market.ProductRepository = (*Products)(nil)

func NewProducts(seed ...market.Product) *Products {
	p := &Products{items: make(map[string]market.Product, len(seed))}
	for _, item := range seed {
		p.items[item.ID] = item
	}
	return p
}

func (r *Products) FindByID(_ context.Context, id string) (market.Product, error) {
	r.Reads.Add(1)
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.items[id]
	if !ok {
		return market.Product{}, market.ErrProductNotFound
	}
	return p, nil
}

func (r *Products) Find(_ context.Context, q market.ProductQuery) ([]market.Product, error) {
	r.Reads.Add(1)
	q = q.Normalize()
	matched := r.filter(q)
	sortProducts(matched, q.Sort)
	start := q.Offset()
	if start >= len(matched) {
		return []market.Product{}, nil
	}
	end := start + q.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], nil
}

func (r *Products) Count(_ context.Context, q market.ProductQuery) (int64, error) {
	r.Reads.Add(1)
	return int64(len(r.filter(q.Normalize()))), nil
}

func (r *Products) Create(_ context.Context, p market.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.items[p.ID]; dup {
		return market.ErrInvalidInput
	}
	r.items[p.ID] = p
	return nil
}

func (r *Products) Update(_ context.Context, p market.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[p.ID]
	if !ok {
		return market.ErrProductNotFound
	}
	p.Views = current.Views
	p.CreatedAt = current.CreatedAt
	p.SellerID = current.SellerID
	r.items[p.ID] = p
	return nil
}

func (r *Products) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return market.ErrProductNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *Products) IncrementViews(_ context.Context, id string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.items[id]
	if !ok {
		return 0, market.ErrProductNotFound
	}
	p.Views++
	r.items[id] = p
	return p.Views, nil
}

func (r *Products) Categories(context.Context) ([]market.CategoryCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int64)
	for _, p := range r.items {
		counts[p.Category]++
	}
	out := make([]market.CategoryCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, market.CategoryCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *Products) filter(q market.ProductQuery) []market.Product {
	r.mu.RLock()
	defer r.mu.RUnlock()
	search := strings.ToLower(q.Search)
	var out []market.Product
	for _, p := range r.items {
		if search != "" && !strings.Contains(strings.ToLower(p.Title+" "+p.Description), search) {
			continue
		}
		if q.Category != "" && p.Category != q.Category {
			continue
		}
		if q.MinPrice > 0 && p.Price < q.MinPrice {
			continue
		}
		if q.MaxPrice > 0 && p.Price > q.MaxPrice {
			continue
		}
		out = append(out, p)
	}
	return out
}

func sortProducts(items []market.Product, order string) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch order {
		case market.SortOldest:
			return a.CreatedAt.Before(b.CreatedAt) || (a.CreatedAt.Equal(b.CreatedAt) && a.ID < b.ID)
		case market.SortPriceAsc:
			return a.Price < b.Price
		case market.SortPriceDesc:
			return a.Price > b.Price
		case market.SortPopular:
			return a.Views > b.Views
		default:
			return a.CreatedAt.After(b.CreatedAt) || (a.CreatedAt.Equal(b.CreatedAt) && a.ID > b.ID)
		}
	})
}

// Users is a market.UserRepository held in a map.
type Users struct {
	mu    sync.RWMutex
	items map[string]market.User
	Reads atomic.Int64
}

var _ market.UserRepository = (*Users)(nil)

func NewUsers(seed ...market.User) *Users {
	u := &Users{items: make(map[string]market.User, len(seed))}
	for _, item := range seed {
		u.items[item.ID] = item
	}
	return u
}

func (r *Users) FindByID(_ context.Context, id string) (market.User, error) {
	r.Reads.Add(1)
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.items[id]
	if !ok {
		return market.User{}, market.ErrUserNotFound
	}
	return u, nil
}

func (r *Users) Upsert(_ context.Context, u market.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[u.ID] = u
	return nil
}
