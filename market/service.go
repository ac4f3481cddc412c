package market

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/adeilh/unimart/marketcache"
)

const tracerName = "github.com/adeilh/unimart/market"

// Service serves reads through the cache and invalidates it on writes.
type Service struct {
	products ProductRepository
	users    UserRepository
	cache    *marketcache.Cache
	validate *validator.Validate
	logger   *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the uuid generator for new listings.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

func NewService(products ProductRepository, users UserRepository, cache *marketcache.Cache, opts ...Option) *Service {
	s := &Service{
		products: products,
		users:    users,
		cache:    cache,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(tracerName),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Cache exposes the cache used by the service.
func (s *Service) Cache() *marketcache.Cache { return s.cache }

// GetProduct returns a listing and counts the view. A cached copy has its
// counter bumped in the cache only; a miss persists the increment.
func (s *Service) GetProduct(ctx context.Context, id string) (Product, error) {
	ctx, span := s.tracer.Start(ctx, "market.GetProduct", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		return Product{}, fail(span, fmt.Errorf("%w: product id is required", ErrInvalidInput))
	}

	var p Product
	if remaining, ok := s.cache.Get(ctx, marketcache.KindProduct, id, &p); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		p.Views++
		// Whole seconds only, so repeated hits never extend the entry.
		if left := remaining.Truncate(time.Second); left > 0 {
			s.cache.CacheProduct(ctx, id, p, left)
		}
		return p, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	p, err := s.products.FindByID(ctx, id)
	if err != nil {
		return Product{}, fail(span, err)
	}
	if views, err := s.products.IncrementViews(ctx, id); err != nil {
		s.logger.Warn("view counter not persisted", zap.String("product_id", id), zap.Error(err))
	} else {
		p.Views = views
	}
	s.cache.CacheProduct(ctx, id, p, 0)
	return p, nil
}

// ListProducts returns one page of listings. Searches are cached under the
// search namespace, plain listings under products.
func (s *Service) ListProducts(ctx context.Context, q ProductQuery) (ProductPage, error) {
	q = q.Normalize()
	ctx, span := s.tracer.Start(ctx, "market.ListProducts", trace.WithAttributes(
		attribute.String("query.search", q.Search),
		attribute.String("query.category", q.Category),
		attribute.Int("query.page", q.Page),
	))
	defer span.End()

	if err := s.validate.Struct(q); err != nil {
		return ProductPage{}, fail(span, fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}

	var page ProductPage
	var hit bool
	if q.Search != "" {
		hit = s.cache.GetCachedSearchResults(ctx, q, &page)
	} else {
		hit = s.cache.GetCachedProductList(ctx, q, &page)
	}
	span.SetAttributes(attribute.Bool("cache.hit", hit))
	if hit {
		return page, nil
	}

	page, err := s.loadPage(ctx, q)
	if err != nil {
		return ProductPage{}, fail(span, err)
	}
	if q.Search != "" {
		s.cache.CacheSearchResults(ctx, q, page, 0)
	} else {
		s.cache.CacheProductList(ctx, q, page, 0)
	}
	return page, nil
}

// CategoryProducts returns one page of a category, cached under
// category:{name}:{paging}.
func (s *Service) CategoryProducts(ctx context.Context, category string, page, limit int, sort string) (ProductPage, error) {
	q := ProductQuery{Category: category, Page: page, Limit: limit, Sort: sort}.Normalize()
	ctx, span := s.tracer.Start(ctx, "market.CategoryProducts", trace.WithAttributes(
		attribute.String("category", q.Category),
		attribute.Int("query.page", q.Page),
	))
	defer span.End()

	if q.Category == "" {
		return ProductPage{}, fail(span, fmt.Errorf("%w: category is required", ErrInvalidInput))
	}
	if err := s.validate.Struct(q); err != nil {
		return ProductPage{}, fail(span, fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}

	paging, err := marketcache.EncodeQuery(map[string]any{"page": q.Page, "limit": q.Limit, "sort": q.Sort})
	if err != nil {
		return ProductPage{}, fail(span, err)
	}
	id := marketcache.CategoryID(q.Category, paging)

	var result ProductPage
	if s.cache.GetCachedCategoryProducts(ctx, id, &result) {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return result, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err = s.loadPage(ctx, q)
	if err != nil {
		return ProductPage{}, fail(span, err)
	}
	s.cache.CacheCategoryProducts(ctx, id, result, 0)
	return result, nil
}

// Categories lists every category with its number of listings.
func (s *Service) Categories(ctx context.Context) ([]CategoryCount, error) {
	ctx, span := s.tracer.Start(ctx, "market.Categories")
	defer span.End()
	counts, err := s.products.Categories(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	if counts == nil {
		counts = []CategoryCount{}
	}
	return counts, nil
}

func (s *Service) loadPage(ctx context.Context, q ProductQuery) (ProductPage, error) {
	items, err := s.products.Find(ctx, q)
	if err != nil {
		return ProductPage{}, err
	}
	total, err := s.products.Count(ctx, q)
	if err != nil {
		return ProductPage{}, err
	}
	return newPage(items, total, q), nil
}

// CreateProduct persists a new listing owned by the actor.
func (s *Service) CreateProduct(ctx context.Context, actor Actor, in ProductInput) (Product, error) {
	ctx, span := s.tracer.Start(ctx, "market.CreateProduct")
	defer span.End()

	if actor.ID == "" {
		return Product{}, fail(span, fmt.Errorf("%w: anonymous seller", ErrForbidden))
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Category = normalizeCategory(in.Category)
	if err := s.validate.Struct(in); err != nil {
		return Product{}, fail(span, fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}

	now := s.now()
	p := Product{
		ID:          s.newID(),
		Title:       in.Title,
		Description: in.Description,
		Price:       in.Price,
		Category:    in.Category,
		Condition:   in.Condition,
		Images:      append([]string{}, in.Images...),
		SellerID:    actor.ID,
		Status:      StatusAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.products.Create(ctx, p); err != nil {
		return Product{}, fail(span, err)
	}
	span.SetAttributes(attribute.String("product.id", p.ID))

	s.invalidateProduct(ctx, p.ID, p.Category)
	return p, nil
}

// UpdateProduct applies patch to a listing the actor owns.
func (s *Service) UpdateProduct(ctx context.Context, actor Actor, id string, patch ProductPatch) (Product, error) {
	ctx, span := s.tracer.Start(ctx, "market.UpdateProduct", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	if err := s.validate.Struct(patch); err != nil {
		return Product{}, fail(span, fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	current, err := s.products.FindByID(ctx, id)
	if err != nil {
		return Product{}, fail(span, err)
	}
	if !actor.canModify(current.SellerID) {
		return Product{}, fail(span, fmt.Errorf("%w: product %s belongs to another seller", ErrForbidden, id))
	}

	updated := current
	patch.apply(&updated)
	if err := s.validate.Struct(inputOf(updated)); err != nil {
		return Product{}, fail(span, fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}
	updated.UpdatedAt = s.now()
	if err := s.products.Update(ctx, updated); err != nil {
		return Product{}, fail(span, err)
	}

	s.invalidateProduct(ctx, id, current.Category, updated.Category)
	return updated, nil
}

// DeleteProduct removes a listing the actor owns.
func (s *Service) DeleteProduct(ctx context.Context, actor Actor, id string) error {
	ctx, span := s.tracer.Start(ctx, "market.DeleteProduct", trace.WithAttributes(attribute.String("product.id", id)))
	defer span.End()

	current, err := s.products.FindByID(ctx, id)
	if err != nil {
		return fail(span, err)
	}
	if !actor.canModify(current.SellerID) {
		return fail(span, fmt.Errorf("%w: product %s belongs to another seller", ErrForbidden, id))
	}
	if err := s.products.Delete(ctx, id); err != nil {
		return fail(span, err)
	}

	s.invalidateProduct(ctx, id, current.Category)
	return nil
}

// GetUser returns a profile through the user cache.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	ctx, span := s.tracer.Start(ctx, "market.GetUser", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fail(span, fmt.Errorf("%w: user id is required", ErrInvalidInput))
	}

	var u User
	if s.cache.GetCachedUser(ctx, id, &u) {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return u, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	u, err := s.users.FindByID(ctx, id)
	if err != nil {
		return User{}, fail(span, err)
	}
	s.cache.CacheUser(ctx, id, u, 0)
	return u, nil
}

// UpdateUser applies patch to the actor's own profile, creating it on first
// write.
func (s *Service) UpdateUser(ctx context.Context, actor Actor, id string, patch UserPatch) (User, error) {
	ctx, span := s.tracer.Start(ctx, "market.UpdateUser", trace.WithAttributes(attribute.String("user.id", id)))
	defer span.End()

	if !actor.canModify(id) {
		return User{}, fail(span, fmt.Errorf("%w: cannot edit another user's profile", ErrForbidden))
	}
	if err := s.validate.Struct(patch); err != nil {
		return User{}, fail(span, fmt.Errorf("%w: %v", ErrInvalidInput, err))
	}

	now := s.now()
	u, err := s.users.FindByID(ctx, id)
	switch {
	case errors.Is(err, ErrUserNotFound) && actor.ID == id:
		u = User{ID: id, Email: actor.Email, CreatedAt: now}
	case err != nil:
		return User{}, fail(span, err)
	}
	patch.apply(&u)
	u.UpdatedAt = now
	if err := s.users.Upsert(ctx, u); err != nil {
		return User{}, fail(span, err)
	}

	patterns := append(marketcache.UserPatterns(id), marketcache.ResourcePatterns("/api/users/"+id)...)
	s.cache.Invalidate(ctx, patterns...)
	return u, nil
}

// invalidateProduct drops every cached view that may contain the product:
// its own key, the listed categories, all listings and searches, and
// whole-response caches under the product and category routes.
func (s *Service) invalidateProduct(ctx context.Context, id string, categories ...string) {
	patterns := append(marketcache.ProductPatterns(id),
		marketcache.AllOf(marketcache.KindProducts),
		marketcache.AllOf(marketcache.KindSearch),
		marketcache.ResponsePattern("/api/products"),
		marketcache.ResponsePattern("/api/categories"),
	)
	seen := map[string]bool{}
	for _, c := range categories {
		c = normalizeCategory(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		patterns = append(patterns, marketcache.CategoryPattern(c))
	}
	removed := s.cache.Invalidate(ctx, patterns...)
	s.logger.Debug("product caches invalidated", zap.String("product_id", id), zap.Int("removed", removed))
}

func inputOf(p Product) ProductInput {
	return ProductInput{
		Title:       p.Title,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Condition:   p.Condition,
		Images:      p.Images,
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
