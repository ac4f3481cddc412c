package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/adeilh/unimart/api"
	"github.com/adeilh/unimart/auth"
	"github.com/adeilh/unimart/cache/memory"
	"github.com/adeilh/unimart/httpx"
	"github.com/adeilh/unimart/internal/testutil/memrepo"
	"github.com/adeilh/unimart/localcache"
	"github.com/adeilh/unimart/market"
	"github.com/adeilh/unimart/marketcache"
)

const testSecret = "client-test-secret-0123456789abc"

type downDB struct{}

func (downDB) Ping(context.Context) error { return errors.New("down") }

type backend struct {
	ts       *httpx.TestServer
	requests atomic.Int64
	issuer   *auth.HMACVerifier
}

func newBackend(t *testing.T, opts ...api.Option) *backend {
	t.Helper()
	issuer, err := auth.NewHMACVerifier([]byte(testSecret), auth.HMACOptions{})
	if err != nil {
		t.Fatalf("NewHMACVerifier: %v", err)
	}
	mw, err := auth.NewMiddleware(issuer)
	if err != nil {
		t.Fatalf("NewMiddleware: %v", err)
	}
	svc := market.NewService(memrepo.NewProducts(), memrepo.NewUsers(), marketcache.New(memory.NewStore(memory.Options{})))
	h := api.NewHandler(svc, append([]api.Option{api.WithAuth(mw)}, opts...)...)

	server := httpx.NewServer()
	server.RegisterRoutes(h.RegisterRoutes)

	b := &backend{issuer: issuer}
	b.ts = httpx.NewTestServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.requests.Add(1)
		server.Handler().ServeHTTP(w, r)
	}))
	t.Cleanup(b.ts.Close)
	return b
}

func (b *backend) token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	raw, err := b.issuer.Issue(auth.Claims{Subject: subject, Roles: roles})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return raw
}

func newMirror(t *testing.T) *localcache.Mirror {
	t.Helper()
	persistent, err := localcache.OpenSQLite(context.Background(), localcache.SQLiteOptions{})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = persistent.Close() })
	return localcache.NewMirror(memory.NewStore(memory.Options{}), persistent, localcache.Options{})
}

func TestClientMirrorsReads(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	c := New(b.ts.BaseURL(), WithMirror(newMirror(t)), WithToken(b.token(t, "seller-1")))
	t.Cleanup(c.Close)

	p, err := c.CreateProduct(ctx, market.ProductInput{Title: "Graphing calculator", Price: 40, Category: "electronics"})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}

	if _, err := c.GetProduct(ctx, p.ID); err != nil {
		t.Fatalf("GetProduct: %v", err)
	}
	before := b.requests.Load()
	got, err := c.GetProduct(ctx, p.ID)
	if err != nil || got.ID != p.ID {
		t.Fatalf("mirrored GetProduct: %v %+v", err, got)
	}
	if b.requests.Load() != before {
		t.Fatalf("mirrored read hit the network")
	}

	q := market.ProductQuery{Category: "electronics"}
	if _, err := c.ListProducts(ctx, q); err != nil {
		t.Fatalf("ListProducts: %v", err)
	}
	before = b.requests.Load()
	page, err := c.ListProducts(ctx, market.ProductQuery{Category: " Electronics ", Page: 1})
	if err != nil || page.Total != 1 {
		t.Fatalf("mirrored ListProducts: %v %+v", err, page)
	}
	if b.requests.Load() != before {
		t.Fatalf("equivalent query missed the mirror")
	}

	price := 35.0
	if _, err := c.UpdateProduct(ctx, p.ID, market.ProductPatch{Price: &price}); err != nil {
		t.Fatalf("UpdateProduct: %v", err)
	}
	got, err = c.GetProduct(ctx, p.ID)
	if err != nil || got.Price != 35 {
		t.Fatalf("GetProduct after update: %v %+v", err, got)
	}
	page, err = c.ListProducts(ctx, q)
	if err != nil || page.Items[0].Price != 35 {
		t.Fatalf("listing after update: %v %+v", err, page)
	}
}

func TestClientErrors(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	anon := New(b.ts.BaseURL())

	if _, err := anon.GetProduct(ctx, "missing"); !errors.Is(err, market.ErrProductNotFound) {
		t.Fatalf("GetProduct missing = %v", err)
	}
	if _, err := anon.GetUser(ctx, "nobody"); !errors.Is(err, market.ErrUserNotFound) {
		t.Fatalf("GetUser missing = %v", err)
	}
	if _, err := anon.CreateProduct(ctx, market.ProductInput{Title: "Bike", Category: "bikes"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("anonymous create = %v", err)
	}

	seller := New(b.ts.BaseURL(), WithToken(b.token(t, "seller-1")))
	if _, err := seller.CreateProduct(ctx, market.ProductInput{Title: "x"}); !errors.Is(err, market.ErrInvalidInput) {
		t.Fatalf("invalid create = %v", err)
	}
	p, err := seller.CreateProduct(ctx, market.ProductInput{Title: "Bike", Category: "bikes"})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	other := New(b.ts.BaseURL(), WithToken(b.token(t, "seller-2")))
	if err := other.DeleteProduct(ctx, p.ID); !errors.Is(err, market.ErrForbidden) {
		t.Fatalf("foreign delete = %v", err)
	}
	if err := seller.DeleteProduct(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProduct: %v", err)
	}
	if _, err := seller.InvalidateCache(ctx, "product:*"); !errors.Is(err, market.ErrForbidden) {
		t.Fatalf("non-admin invalidate = %v", err)
	}
}

func TestClientAdminAndUsers(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	mirror := newMirror(t)
	admin := New(b.ts.BaseURL(), WithMirror(mirror), WithToken(b.token(t, "root", auth.RoleAdmin)))
	t.Cleanup(admin.Close)

	name := "Root"
	if _, err := admin.UpdateUser(ctx, "root", market.UserPatch{Name: &name}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	u, err := admin.GetUser(ctx, "root")
	if err != nil || u.Name != "Root" {
		t.Fatalf("GetUser: %v %+v", err, u)
	}

	if _, err := admin.InvalidateCache(ctx, "user:*"); err != nil {
		t.Fatalf("InvalidateCache: %v", err)
	}
	if err := admin.FlushCache(ctx); err != nil {
		t.Fatalf("FlushCache: %v", err)
	}
	var v market.User
	if mirror.Get(ctx, "user:root", &v) {
		t.Fatalf("FlushCache left the local mirror populated")
	}
}

func TestClientHealth(t *testing.T) {
	ctx := context.Background()
	h, err := New(newBackend(t).ts.BaseURL()).Health(ctx)
	if err != nil || h.Status != api.HealthOK {
		t.Fatalf("Health: %v %+v", err, h)
	}

	down := newBackend(t, api.WithDatabase(downDB{}))
	h, err = New(down.ts.BaseURL(), WithTimeout(5*time.Second)).Health(ctx)
	if !errors.Is(err, ErrUnhealthy) || h.Status != api.HealthDown || h.Database {
		t.Fatalf("Health with database down: %v %+v", err, h)
	}
}

func TestClientSweepsMirrorUntilClosed(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	var (
		mu  sync.Mutex
		now = time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	// Only the mirror runs on the fake clock; the stores keep the entry for
	// an hour of real time, so just the sweep can remove it.
	persistent, err := localcache.OpenSQLite(ctx, localcache.SQLiteOptions{})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = persistent.Close() })
	mirror := localcache.NewMirror(memory.NewStore(memory.Options{}), persistent, localcache.Options{SweepInterval: 10 * time.Millisecond, Now: clock})

	c := New(b.ts.BaseURL(), WithMirror(mirror))
	if err := mirror.Set(ctx, "product:stale", map[string]string{"id": "stale"}, time.Hour); err != nil {
		t.Fatalf("mirror Set: %v", err)
	}
	mu.Lock()
	now = now.Add(2 * time.Hour)
	mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	for {
		keys, err := persistent.Keys(ctx, "*")
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if len(keys) == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expired entry never swept: %v", keys)
		}
		time.Sleep(10 * time.Millisecond)
	}

	c.Close()
	c.Close()
}
