// Package testdb opens in-memory sqlite databases with the full schema
// applied, for package-level tests.
package testdb

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/tipwave/tipwave/internal/migration"
)

func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	statements, err := migration.Statements()
	if err != nil {
		t.Fatalf("load schema: %v", err)
	}
	for _, stmt := range statements {
		// sqlite drivers only map DATE/DATETIME/TIMESTAMP declared types
		// to time.Time, so use TIMESTAMP for the postgres TIMESTAMPTZ.
		stmt = strings.ReplaceAll(stmt, "TIMESTAMPTZ", "TIMESTAMP")
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return db
}
