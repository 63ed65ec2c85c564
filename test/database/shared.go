package database

import (
	"testing"

	"github.com/tideline/tideline/pkg/database"
	"github.com/tideline/tideline/test/util"
)

// SharedTestDB is a single migrated schema that multiple replicas can share.
// Each replica gets its own connection pool via NewClient, but all pools
// point at the same schema, which is what multi-pod queue tests need to
// exercise the per-kind concurrency caps across replicas.
type SharedTestDB struct {
	harness *util.SchemaHarness
}

// NewSharedTestDB creates the shared schema and runs migrations once.
// The schema is dropped via t.Cleanup after all replica pools are closed.
func NewSharedTestDB(t *testing.T) *SharedTestDB {
	t.Helper()
	return &SharedTestDB{harness: util.NewSchemaHarness(t)}
}

// NewClient creates an independent *database.Client backed by a fresh
// connection pool to the shared schema. Each client has its own pool so
// replicas can be shut down independently without races.
func (s *SharedTestDB) NewClient(t *testing.T) *database.Client {
	t.Helper()
	return database.NewClientFromPool(s.harness.NewPool(t))
}
