// Package integration exercises the PostgreSQL repositories against a real
// server. Set COORD_TEST_DATABASE_URL to run it; each test gets its own schema.
package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/coord/internal/domain/staff"
	"github.com/clinicdesk/coord/internal/platform/db"
	"github.com/clinicdesk/coord/migrations"
)

const databaseURLEnv = "COORD_TEST_DATABASE_URL"

// uniqueSchema generates a schema name for test isolation.
func uniqueSchema(prefix string) string {
	short := strings.ReplaceAll(uuid.New().String()[:8], "-", "")
	return fmt.Sprintf("coord_%s_%s", prefix, short)
}

// newTestPool connects with search_path set to a fresh migrated schema and
// drops the schema when the test ends.
func newTestPool(t *testing.T, prefix string) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv(databaseURLEnv)
	if url == "" {
		t.Skipf("%s not set", databaseURLEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := uniqueSchema(prefix)
	pool, err := db.NewPool(ctx, url, 4, 1, schema)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx, schema); err != nil {
		pool.Close()
		t.Fatalf("migrate %s: %v", schema, err)
	}

	t.Cleanup(func() {
		drop := fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", pgx.Identifier{schema}.Sanitize())
		if _, err := pool.Exec(context.Background(), drop); err != nil {
			t.Logf("warning: failed to drop schema %s: %v", schema, err)
		}
		pool.Close()
	})
	return pool
}

func newUser(name string, role staff.Role) staff.User {
	return staff.User{ID: uuid.New(), Name: name, Role: role}
}
