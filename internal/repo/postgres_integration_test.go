//go:build integration

package repo_test

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shaiso/Extract/internal/repo"
	"github.com/shaiso/Extract/internal/repo/repotest"
)

var testStore *repo.Postgres

// TestMain поднимает Postgres в контейнере на время всех тестов пакета.
func TestMain(m *testing.M) {
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "extract",
				"POSTGRES_PASSWORD": "extract",
				"POSTGRES_DB":       "extract",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("container port: %v", err)
	}

	dsn := fmt.Sprintf("postgresql://extract:extract@%s:%s/extract?sslmode=disable", host, port.Port())
	pool, err := repo.NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	if err := repo.Migrate(pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	testStore = repo.NewPostgres(pool)

	code := m.Run()

	testStore.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

func TestPostgresContract(t *testing.T) {
	repotest.Run(t, testStore)
}
