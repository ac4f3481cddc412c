// Package market holds the marketplace domain: products, user profiles and
// the cache-aside service in front of their repositories.
package market

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrProductNotFound = errors.New("market: product not found")
	ErrUserNotFound    = errors.New("market: user not found")
	ErrInvalidInput    = errors.New("market: invalid input")
	ErrForbidden       = errors.New("market: forbidden")
)

// Product statuses.
const (
	StatusAvailable = "available"
	StatusReserved  = "reserved"
	StatusSold      = "sold"
)

// Sort orders accepted by ProductQuery.
const (
	SortNewest    = "newest"
	SortOldest    = "oldest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortPopular   = "popular"
)

// Paging bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Price       float64   `json:"price"`
	Category    string    `json:"category"`
	Condition   string    `json:"condition"`
	Images      []string  `json:"images"`
	SellerID    string    `json:"sellerId"`
	Status      string    `json:"status"`
	Views       int64     `json:"views"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ProductInput is the payload of a new listing.
type ProductInput struct {
	Title       string   `json:"title" validate:"required,min=3,max=120"`
	Description string   `json:"description" validate:"max=5000"`
	Price       float64  `json:"price" validate:"gte=0,lte=1000000"`
	Category    string   `json:"category" validate:"required,max=60"`
	Condition   string   `json:"condition" validate:"omitempty,oneof=new like-new good fair poor"`
	Images      []string `json:"images" validate:"max=10,dive,url"`
}

// ProductPatch updates the non-nil fields of a listing.
type ProductPatch struct {
	Title       *string   `json:"title,omitempty"`
	Description *string   `json:"description,omitempty"`
	Price       *float64  `json:"price,omitempty"`
	Category    *string   `json:"category,omitempty"`
	Condition   *string   `json:"condition,omitempty"`
	Images      *[]string `json:"images,omitempty"`
	Status      *string   `json:"status,omitempty" validate:"omitempty,oneof=available reserved sold"`
}

func (p ProductPatch) apply(dst *Product) {
	if p.Title != nil {
		dst.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		dst.Description = strings.TrimSpace(*p.Description)
	}
	if p.Price != nil {
		dst.Price = *p.Price
	}
	if p.Category != nil {
		dst.Category = normalizeCategory(*p.Category)
	}
	if p.Condition != nil {
		dst.Condition = *p.Condition
	}
	if p.Images != nil {
		dst.Images = append([]string(nil), (*p.Images)...)
	}
	if p.Status != nil {
		dst.Status = *p.Status
	}
}

type User struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	University  string    `json:"university"`
	AvatarURL   string    `json:"avatarUrl"`
	Bio         string    `json:"bio"`
	Rating      float64   `json:"rating"`
	RatingCount int64     `json:"ratingCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// UserPatch updates the non-nil fields of a profile.
type UserPatch struct {
	Name       *string `json:"name,omitempty" validate:"omitempty,min=1,max=80"`
	University *string `json:"university,omitempty" validate:"omitempty,max=120"`
	AvatarURL  *string `json:"avatarUrl,omitempty" validate:"omitempty,url"`
	Bio        *string `json:"bio,omitempty" validate:"omitempty,max=1000"`
}

func (p UserPatch) apply(dst *User) {
	if p.Name != nil {
		dst.Name = strings.TrimSpace(*p.Name)
	}
	if p.University != nil {
		dst.University = strings.TrimSpace(*p.University)
	}
	if p.AvatarURL != nil {
		dst.AvatarURL = *p.AvatarURL
	}
	if p.Bio != nil {
		dst.Bio = *p.Bio
	}
}

// ProductQuery filters and pages product listings. Its JSON form is the
// cache identifier of the page it selects.
type ProductQuery struct {
	Search   string  `json:"search,omitempty" query:"search"`
	Category string  `json:"category,omitempty" query:"category"`
	MinPrice float64 `json:"minPrice,omitempty" query:"minPrice" validate:"gte=0"`
	MaxPrice float64 `json:"maxPrice,omitempty" query:"maxPrice" validate:"gte=0"`
	Sort     string  `json:"sort,omitempty" query:"sort" validate:"omitempty,oneof=newest oldest price_asc price_desc popular"`
	Page     int     `json:"page,omitempty" query:"page"`
	Limit    int     `json:"limit,omitempty" query:"limit"`
}

// Normalize clamps paging and canonicalizes filters.
func (q ProductQuery) Normalize() ProductQuery {
	q.Search = strings.TrimSpace(q.Search)
	q.Category = normalizeCategory(q.Category)
	if q.Sort == "" {
		q.Sort = SortNewest
	}
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.Limit <= 0:
		q.Limit = DefaultLimit
	case q.Limit > MaxLimit:
		q.Limit = MaxLimit
	}
	if q.MaxPrice > 0 && q.MinPrice > q.MaxPrice {
		q.MinPrice, q.MaxPrice = q.MaxPrice, q.MinPrice
	}
	return q
}

// Offset is the number of rows skipped before the page.
func (q ProductQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

type ProductPage struct {
	Items []Product `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
	Pages int       `json:"pages"`
}

func newPage(items []Product, total int64, q ProductQuery) ProductPage {
	if items == nil {
		items = []Product{}
	}
	pages := 0
	if q.Limit > 0 {
		pages = int((total + int64(q.Limit) - 1) / int64(q.Limit))
	}
	return ProductPage{Items: items, Total: total, Page: q.Page, Limit: q.Limit, Pages: pages}
}

type CategoryCount struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// Actor is the authenticated caller of a write.
type Actor struct {
	ID    string
	Email string
	Admin bool
}

func (a Actor) canModify(ownerID string) bool {
	return a.Admin || (a.ID != "" && a.ID == ownerID)
}

// ProductRepository is the source of truth for listings.
type ProductRepository interface {
	FindByID(ctx context.Context, id string) (Product, error)
	Find(ctx context.Context, q ProductQuery) ([]Product, error)
	Count(ctx context.Context, q ProductQuery) (int64, error)
	Create(ctx context.Context, p Product) error
	Update(ctx context.Context, p Product) error
	Delete(ctx context.Context, id string) error
	IncrementViews(ctx context.Context, id string) (int64, error)
	Categories(ctx context.Context) ([]CategoryCount, error)
}

// UserRepository is the source of truth for profiles.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (User, error)
	Upsert(ctx context.Context, u User) error
}

func normalizeCategory(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
