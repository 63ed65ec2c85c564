package database

import (
	"testing"

	"github.com/tideline/tideline/pkg/database"
	"github.com/tideline/tideline/test/util"
)

// NewTestClient creates a migrated test database client.
// In CI (when CI_DATABASE_URL is set): connects to the external PostgreSQL
// service container. In local dev: spins up a shared pgvector testcontainer.
// Schema and connections are cleaned up when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	t.Helper()
	pool := util.SetupTestDatabase(t)
	return database.NewClientFromPool(pool)
}
