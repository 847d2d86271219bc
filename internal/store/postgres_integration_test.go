//go:build postgres_integration

package store

import (
    "os"
    "testing"

    "github.com/sirupsen/logrus"
)

func TestPostgresConnectivityAndMigrate(t *testing.T) {
    dsn := os.Getenv("DATABASE_URL")
    if dsn == "" { t.Skip("DATABASE_URL not set; skipping integration test") }
    p, err := NewPostgres(t.Context(), dsn, logrus.New())
    if err != nil { t.Fatalf("NewPostgres: %v", err) }
    defer func() { _ = p.Close() }()
    if err := p.Ping(t.Context()); err != nil { t.Fatalf("Ping: %v", err) }
    if err := p.Migrate(); err != nil { t.Fatalf("Migrate: %v", err) }
    runStoreContract(t, p)
}
