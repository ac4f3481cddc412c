package postgres

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/adeilh/unimart/market"
)

func TestBuildFilter(t *testing.T) {
	where, args := buildFilter(market.ProductQuery{})
	if where != "" || len(args) != 0 {
		t.Fatalf("empty query produced %q %v", where, args)
	}

	where, args = buildFilter(market.ProductQuery{Search: "50%_off", Category: "books", MinPrice: 5, MaxPrice: 20})
	want := ` WHERE (title ILIKE $1 ESCAPE '\' OR description ILIKE $1 ESCAPE '\') AND category = $2 AND price >= $3 AND price <= $4`
	if where != want {
		t.Fatalf("where = %q\nwant    %q", where, want)
	}
	wantArgs := []any{`%50\%\_off%`, "books", 5.0, 20.0}
	if !reflect.DeepEqual(args, wantArgs) {
		t.Fatalf("args = %#v, want %#v", args, wantArgs)
	}
}

func TestOrderBy(t *testing.T) {
	cases := map[string]string{
		"":                   "created_at DESC, id DESC",
		market.SortNewest:    "created_at DESC, id DESC",
		market.SortOldest:    "created_at ASC, id ASC",
		market.SortPriceAsc:  "price ASC, created_at DESC",
		market.SortPriceDesc: "price DESC, created_at DESC",
		market.SortPopular:   "views DESC, created_at DESC",
		"drop table":         "created_at DESC, id DESC",
	}
	for sort, want := range cases {
		if got := orderBy(sort); got != want {
			t.Errorf("orderBy(%q) = %q, want %q", sort, got, want)
		}
	}
}

func seedProduct(id, title, category string, price float64, created time.Time) market.Product {
	return market.Product{
		ID:        id,
		Title:     title,
		Price:     price,
		Category:  category,
		Condition: "good",
		Images:    []string{"https://img.example/" + id + ".jpg"},
		SellerID:  "seller-1",
		Status:    market.StatusAvailable,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestProductRepositoryCRUD(t *testing.T) {
	db := openTestDB(t)
	repo := NewProductRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	created := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	p := seedProduct("p-1", "Calculus textbook", "books", 25.5, created)
	if err := repo.Create(ctx, p); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if err := repo.Create(ctx, p); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("duplicate Create = %v, want ErrInvalidInput", err)
	}

	got, err := repo.FindByID(ctx, "p-1")
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if got.Title != p.Title || got.Price != 25.5 || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected product %+v", got)
	}
	if len(got.Images) != 1 || got.Images[0] != p.Images[0] {
		t.Fatalf("images = %v", got.Images)
	}

	views, err := repo.IncrementViews(ctx, "p-1")
	if err != nil || views != 1 {
		t.Fatalf("IncrementViews = %d, %v", views, err)
	}

	got.Title = "Calculus, 9th edition"
	got.Status = market.StatusSold
	got.Images = nil
	got.UpdatedAt = created.Add(time.Hour)
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	got, err = repo.FindByID(ctx, "p-1")
	if err != nil {
		t.Fatalf("FindByID after update: %v", err)
	}
	if got.Title != "Calculus, 9th edition" || got.Status != market.StatusSold || got.Views != 1 || len(got.Images) != 0 {
		t.Fatalf("update not persisted: %+v", got)
	}

	if err := repo.Delete(ctx, "p-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, err := repo.FindByID(ctx, "p-1"); !errors.Is(err, market.ErrProductNotFound) {
		t.Fatalf("FindByID after delete = %v", err)
	}
	if err := repo.Delete(ctx, "p-1"); !errors.Is(err, market.ErrProductNotFound) {
		t.Fatalf("second Delete = %v", err)
	}
	if err := repo.Update(ctx, got); !errors.Is(err, market.ErrProductNotFound) {
		t.Fatalf("Update missing = %v", err)
	}
	if _, err := repo.IncrementViews(ctx, "p-1"); !errors.Is(err, market.ErrProductNotFound) {
		t.Fatalf("IncrementViews missing = %v", err)
	}
}

func TestProductRepositoryFindAndCount(t *testing.T) {
	db := openTestDB(t)
	repo := NewProductRepository(db)
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	seed := []market.Product{
		seedProduct("b-1", "Linear algebra notes", "books", 5, base),
		seedProduct("b-2", "Organic chemistry", "books", 40, base.Add(time.Hour)),
		seedProduct("b-3", "100% cotton tote", "bags", 12, base.Add(2*time.Hour)),
		seedProduct("k-1", "Road bike", "bikes", 150, base.Add(3*time.Hour)),
	}
	for _, p := range seed {
		if err := repo.Create(ctx, p); err != nil {
			t.Fatalf("seed %s: %v", p.ID, err)
		}
	}

	books, err := repo.Find(ctx, market.ProductQuery{Category: " Books ", Sort: market.SortPriceDesc})
	if err != nil {
		t.Fatalf("Find error: %v", err)
	}
	if len(books) != 2 || books[0].ID != "b-2" || books[1].ID != "b-1" {
		t.Fatalf("books = %+v", ids(books))
	}

	page, err := repo.Find(ctx, market.ProductQuery{Limit: 2, Page: 2})
	if err != nil {
		t.Fatalf("Find page error: %v", err)
	}
	if got := ids(page); !reflect.DeepEqual(got, []string{"b-2", "b-1"}) {
		t.Fatalf("page 2 = %v", got)
	}

	literal, err := repo.Find(ctx, market.ProductQuery{Search: "100%"})
	if err != nil {
		t.Fatalf("Find search error: %v", err)
	}
	if got := ids(literal); !reflect.DeepEqual(got, []string{"b-3"}) {
		t.Fatalf("search 100%% = %v", got)
	}

	total, err := repo.Count(ctx, market.ProductQuery{MinPrice: 10, MaxPrice: 100})
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if total != 2 {
		t.Fatalf("price band count = %d, want 2", total)
	}

	cats, err := repo.Categories(ctx)
	if err != nil {
		t.Fatalf("Categories error: %v", err)
	}
	want := []market.CategoryCount{{Name: "bags", Count: 1}, {Name: "bikes", Count: 1}, {Name: "books", Count: 2}}
	if !reflect.DeepEqual(cats, want) {
		t.Fatalf("categories = %+v, want %+v", cats, want)
	}
}

func ids(products []market.Product) []string {
	out := make([]string, len(products))
	for i, p := range products {
		out[i] = p.ID
	}
	return out
}
