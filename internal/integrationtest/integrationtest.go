// Package integrationtest provides server and db helpers used in
// integration tests.
package integrationtest

import (
	"database/sql"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/flexipay/flexipay/cmd/httpserver"
	"github.com/flexipay/flexipay/internal/middleware"
	"github.com/flexipay/flexipay/pkg/configpkg"
	"github.com/flexipay/flexipay/pkg/dbpkg"
)

// SetupServer returns a test server wired to the given gateway stub that
// cleans up the database after each integration test.
func SetupServer(t *testing.T, gatewayBaseURL string) *httpserver.Server {
	config, err := configpkg.Load("../../configs")
	if err != nil {
		t.Fatalf(`configpkg.Load("../../configs") returned error: %v`, err)
	}

	config.GatewayBaseURL = gatewayBaseURL

	// Outbound notifications have no listener in tests; deliveries are
	// fire-and-forget and failures are swallowed.
	zerolog.SetGlobalLevel(zerolog.FatalLevel)

	logger := middleware.GetLogger(config)

	db := SetupDB(t, config.DBDriver, config.DBSource)

	gin.SetMode(gin.TestMode)

	server, err := httpserver.New(db, logger, config)
	if err != nil {
		t.Fatalf("httpserver.New(db, logger, config) returned error: %v", err)
	}

	return server
}

// Flush flushes all db tables without dropping.
func Flush(t *testing.T, db *sql.DB) {
	t.Helper()

	var tables string

	const query = `
	SELECT string_agg(table_name, ', ')
	FROM information_schema.tables
	WHERE table_schema='public';`

	row := db.QueryRow(query)

	err := row.Scan(&tables)
	if err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}

	if _, err := db.Exec(`TRUNCATE TABLE ` + tables + " CASCADE"); err != nil {
		t.Fatalf("db cleanup failed. err: %v", err)
	}
}

// SetupDB sets up connection with database for testing and then cleans it.
func SetupDB(t *testing.T, driver, source string) *sql.DB {
	t.Helper()

	db, err := dbpkg.Setup(driver, source)
	if err != nil {
		t.Fatalf("db initialization failed. err: %v", err)
	}

	t.Cleanup(func() {
		Flush(t, db)

		if err := db.Close(); err != nil {
			t.Fatalf("db cleanup failed. err: %v", err)
		}
	})

	return db
}
