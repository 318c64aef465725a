// Package testdb opens throwaway SQLite databases carrying the PawPass schema
// for repository and service tests.
package testdb

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/pawpass-backend/pkg/db/models"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
)

const schema = `
CREATE TABLE users (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  role TEXT NOT NULL DEFAULT 'customer',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE service_categories (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME
);
CREATE TABLE services (
  id TEXT PRIMARY KEY,
  category_id TEXT,
  name TEXT NOT NULL,
  slug TEXT NOT NULL UNIQUE,
  description TEXT,
  price TEXT NOT NULL,
  duration_hours INTEGER NOT NULL DEFAULT 1,
  is_bundle INTEGER NOT NULL DEFAULT 0,
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE orders (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES users (id),
  payment_session_id TEXT,
  is_paid INTEGER NOT NULL DEFAULT 0,
  total_amount TEXT NOT NULL DEFAULT '0',
  currency TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT orders_payment_session_id_key UNIQUE (payment_session_id)
);
CREATE TABLE order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL REFERENCES orders (id) ON DELETE CASCADE,
  service_id TEXT NOT NULL REFERENCES services (id),
  service_name TEXT NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity > 0),
  unit_price TEXT NOT NULL,
  created_at DATETIME,
  CONSTRAINT order_items_order_service_key UNIQUE (order_id, service_id)
);
CREATE TABLE vouchers (
  id TEXT PRIMARY KEY,
  code TEXT NOT NULL,
  order_item_id TEXT NOT NULL REFERENCES order_items (id) ON DELETE CASCADE,
  user_id TEXT NOT NULL REFERENCES users (id),
  service_id TEXT NOT NULL REFERENCES services (id),
  status TEXT NOT NULL DEFAULT 'ISSUED',
  issued_at DATETIME NOT NULL,
  expires_at DATETIME NOT NULL,
  redeemed_at DATETIME,
  redeemed_by TEXT,
  qr_asset_key TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT vouchers_code_key UNIQUE (code)
);
CREATE TABLE materialization_failures (
  id TEXT PRIMARY KEY,
  payment_session_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  order_id TEXT,
  stage TEXT NOT NULL,
  lines BLOB NOT NULL,
  cart_session TEXT,
  reason TEXT NOT NULL,
  error_message TEXT,
  retryable INTEGER NOT NULL DEFAULT 1,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_attempt_at DATETIME,
  resolved_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);
CREATE TABLE outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);
CREATE TABLE outbox_dlq (
  id TEXT PRIMARY KEY,
  event_id TEXT NOT NULL UNIQUE,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload_json BLOB NOT NULL,
  error_reason TEXT NOT NULL,
  error_message TEXT,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  failed_at DATETIME,
  created_at DATETIME
);
`

// Open returns an isolated in-memory database with the schema applied. A single
// connection is used, so code under test must route every statement inside a
// transaction through that transaction.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=on", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
		NowFunc:                func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, conn.Exec(schema).Error)
	return conn
}

// SeedUser inserts an active user with the given role.
func SeedUser(t *testing.T, db *gorm.DB, role enums.Role) models.User {
	t.Helper()
	id := uuid.New()
	user := models.User{
		ID:       id,
		Email:    id.String() + "@pawpass.test",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

// SeedService inserts a catalogue entry.
func SeedService(t *testing.T, db *gorm.DB, name, price string, active bool) models.Service {
	t.Helper()
	id := uuid.New()
	svc := models.Service{
		ID:            id,
		Name:          name,
		Slug:          id.String(),
		Price:         decimal.RequireFromString(price),
		DurationHours: 1,
		IsActive:      active,
	}
	require.NoError(t, db.Create(&svc).Error)
	return svc
}
