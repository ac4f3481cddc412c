package postgres

// Schema is the ordered list of marketplace migrations.
var Schema = []Migration{
	{
		Version: 1,
		Name:    "users",
		SQL: `CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL DEFAULT '',
	email        TEXT NOT NULL DEFAULT '',
	university   TEXT NOT NULL DEFAULT '',
	avatar_url   TEXT NOT NULL DEFAULT '',
	bio          TEXT NOT NULL DEFAULT '',
	rating       DOUBLE PRECISION NOT NULL DEFAULT 0,
	rating_count BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
)`,
	},
	{
		Version: 2,
		Name:    "products",
		SQL: `CREATE TABLE IF NOT EXISTS products (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	price       NUMERIC(12,2) NOT NULL DEFAULT 0,
	category    TEXT NOT NULL,
	condition   TEXT NOT NULL DEFAULT '',
	images      TEXT[] NOT NULL DEFAULT '{}',
	seller_id   TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'available',
	views       BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`,
	},
	{
		Version: 3,
		Name:    "product_indexes",
		SQL: `CREATE INDEX IF NOT EXISTS products_category_idx ON products (category, created_at DESC);
CREATE INDEX IF NOT EXISTS products_seller_idx ON products (seller_id)`,
	},
}
