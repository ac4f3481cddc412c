package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/adeilh/unimart/market"
)

const productColumns = `id, title, description, price, category, condition, images, seller_id, status, views, created_at, updated_at`

// ProductRepository persists market.Product listings inside PostgreSQL.
type ProductRepository struct {
	db *sql.DB
}

var _ market.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository wraps an existing *sql.DB connection.
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

func (r *ProductRepository) FindByID(ctx context.Context, id string) (market.Product, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return market.Product{}, market.ErrProductNotFound
		}
		return market.Product{}, translateError(err, market.ErrProductNotFound)
	}
	return p, nil
}

func (r *ProductRepository) Find(ctx context.Context, q market.ProductQuery) ([]market.Product, error) {
	q = q.Normalize()
	where, args := buildFilter(q)
	args = append(args, q.Limit, q.Offset())
	query := fmt.Sprintf(`SELECT %s FROM products%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		productColumns, where, orderBy(q.Sort), len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err, market.ErrProductNotFound)
	}
	defer rows.Close()

	items := make([]market.Product, 0, q.Limit)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *ProductRepository) Count(ctx context.Context, q market.ProductQuery) (int64, error) {
	where, args := buildFilter(q.Normalize())
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return 0, translateError(err, market.ErrProductNotFound)
	}
	return total, nil
}

func (r *ProductRepository) Create(ctx context.Context, p market.Product) error {
	const query = `INSERT INTO products (` + productColumns + `)
                   VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Title, p.Description, p.Price, p.Category, p.Condition, pq.Array(nonNil(p.Images)),
		p.SellerID, p.Status, p.Views, p.CreatedAt, p.UpdatedAt)
	return translateError(err, market.ErrProductNotFound)
}

func (r *ProductRepository) Update(ctx context.Context, p market.Product) error {
	const query = `UPDATE products SET title = $2, description = $3, price = $4, category = $5, condition = $6,
                   images = $7, status = $8, updated_at = $9 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query,
		p.ID, p.Title, p.Description, p.Price, p.Category, p.Condition, pq.Array(nonNil(p.Images)),
		p.Status, p.UpdatedAt)
	if err != nil {
		return translateError(err, market.ErrProductNotFound)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return market.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return translateError(err, market.ErrProductNotFound)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return market.ErrProductNotFound
	}
	return nil
}

// IncrementViews bumps the counter and returns the stored value.
func (r *ProductRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	var views int64
	err := r.db.QueryRowContext(ctx, `UPDATE products SET views = views + 1 WHERE id = $1 RETURNING views`, id).Scan(&views)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, market.ErrProductNotFound
		}
		return 0, translateError(err, market.ErrProductNotFound)
	}
	return views, nil
}

func (r *ProductRepository) Categories(ctx context.Context) ([]market.CategoryCount, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM products GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.CategoryCount
	for rows.Next() {
		var c market.CategoryCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(s scanner) (market.Product, error) {
	var p market.Product
	err := s.Scan(
		&p.ID,
		&p.Title,
		&p.Description,
		&p.Price,
		&p.Category,
		&p.Condition,
		pq.Array(&p.Images),
		&p.SellerID,
		&p.Status,
		&p.Views,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return market.Product{}, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	if p.Images == nil {
		p.Images = []string{}
	}
	return p, nil
}

// buildFilter renders the WHERE clause for q with positional arguments.
func buildFilter(q market.ProductQuery) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(format string, v any) {
		args = append(args, v)
		clauses = append(clauses, fmt.Sprintf(format, len(args)))
	}

	if q.Search != "" {
		add(`(title ILIKE $%[1]d ESCAPE '\' OR description ILIKE $%[1]d ESCAPE '\')`, "%"+escapeLike(q.Search)+"%")
	}
	if q.Category != "" {
		add(`category = $%d`, q.Category)
	}
	if q.MinPrice > 0 {
		add(`price >= $%d`, q.MinPrice)
	}
	if q.MaxPrice > 0 {
		add(`price <= $%d`, q.MaxPrice)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func orderBy(sort string) string {
	switch sort {
	case market.SortOldest:
		return "created_at ASC, id ASC"
	case market.SortPriceAsc:
		return "price ASC, created_at DESC"
	case market.SortPriceDesc:
		return "price DESC, created_at DESC"
	case market.SortPopular:
		return "views DESC, created_at DESC"
	default:
		return "created_at DESC, id DESC"
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
