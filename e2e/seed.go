package e2e

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/glizzus/soundboard/internal/datalayer"
	"github.com/glizzus/soundboard/internal/generator"
	"github.com/glizzus/soundboard/internal/repository"
	"github.com/glizzus/soundboard/internal/sound"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var seedOnce sync.Once

type RandomSnowFlakeGenerator struct {
	counter uint64
}

func (g *RandomSnowFlakeGenerator) Next() (string, error) {
	const min = 1e17
	if g.counter < min {
		g.counter = min
	}
	id := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%d", id), nil
}

var _ generator.Generator[string] = (*RandomSnowFlakeGenerator)(nil)

// NoiseCommand is the global command SeedGlobalNoise records usage for.
const NoiseCommand = "noise"

// SeedGlobalNoise records one use of NoiseCommand in each of 100 unrelated guilds.
func SeedGlobalNoise(t *testing.T, repo *repository.PostgresStatsRepository) {
	t.Helper()
	seedOnce.Do(func() {
		guildIDGen := RandomSnowFlakeGenerator{}
		usages := make([]repository.Usage, 0, 100)
		for range 100 {
			guildID, _ := guildIDGen.Next()
			usages = append(usages, repository.Usage{
				Command: NoiseCommand,
				Scope:   sound.Global(),
				GuildID: guildID,
			})
		}

		if err := repo.Record(t.Context(), usages...); err != nil {
			t.Fatalf("failed to seed usage: %v", err)
		}
	})
}

// SeedSound writes a complete record with placeholder audio into store.
func SeedSound(t *testing.T, store *sound.Store, scope sound.Scope, name string, meta sound.Metadata) {
	t.Helper()

	if _, err := store.Prepare(scope, name); err != nil {
		t.Fatalf("failed to prepare sound: %v", err)
	}
	variants := store.Paths(scope, name)
	for _, p := range []string{variants.General, variants.Transport} {
		if err := os.WriteFile(p, []byte("audio"), 0o644); err != nil {
			t.Fatalf("failed to write audio: %v", err)
		}
	}
	if err := store.Write(scope, name, meta, variants); err != nil {
		t.Fatalf("failed to write sound: %v", err)
	}
}

var (
	once              sync.Once
	postgresContainer *postgres.PostgresContainer
	connStr           string
	startErr          error
	pool              *pgxpool.Pool
	wg                sync.WaitGroup
)

// UsePostgres signals that the test is using Postgres as its database.
// This will either provision or reuse a Postgres container for the test.
// Do not expect a clean state in the database; it is shared across tests
// to simulate real-world usage.
func UsePostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}

	once.Do(func() {
		ctx := context.Background()
		postgresContainer, startErr = postgres.Run(
			ctx,
			"postgres",
			postgres.WithDatabase("soundboard"),
			postgres.WithUsername("user"),
			postgres.WithPassword("password"),
			postgres.BasicWaitStrategies(),
		)
		if startErr != nil {
			return
		}
		connStr, startErr = postgresContainer.ConnectionString(ctx)
		if startErr != nil {
			return
		}

		pool, startErr = pgxpool.New(ctx, connStr)
		if startErr != nil {
			return
		}
		defer pool.Close()

		startErr = datalayer.MigratePostgres(pool)
	})

	if startErr != nil {
		t.Fatalf("failed to start postgres container: %v", startErr)
	}
	wg.Add(1)
	t.Cleanup(wg.Done)

	return connStr
}

// GetRepository creates a new PostgresStatsRepository for testing.
// It uses the provided connection string to connect to the database.
// It performs no modifications or migrations on the database schema.
func GetRepository(t *testing.T, connStr string) *repository.PostgresStatsRepository {
	t.Helper()
	pool, err := pgxpool.New(t.Context(), connStr)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}

	t.Cleanup(pool.Close)
	return repository.NewPostgresStatsRepository(pool)
}

func TerminatePostgresForE2E() {
	wg.Wait()
	if postgresContainer != nil {
		err := postgresContainer.Terminate(context.Background())
		if err != nil {
			fmt.Printf("failed to terminate postgres container: %v", err)
		}
	}
}
