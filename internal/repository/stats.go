package repository

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/glizzus/soundboard/internal/sound"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Usage is one invocation of a sound command.
type Usage struct {
	Command string
	// Scope owns the command.
	Scope sound.Scope
	// GuildID is where the command was invoked.
	GuildID string
}

type CommandCount struct {
	Command string
	Count   int64
}

type GuildCount struct {
	GuildID string
	Count   int64
}

type StatsRecorder interface {
	Record(ctx context.Context, usages ...Usage) error
}

type StatsReader interface {
	// GlobalTotals sums every global command over all guilds.
	GlobalTotals(ctx context.Context) ([]CommandCount, error)
	// GuildTotals lists the commands owned by guildID.
	GuildTotals(ctx context.Context, guildID string) ([]CommandCount, error)
	// GlobalByGuild breaks a global command down by the guilds it was used in.
	GlobalByGuild(ctx context.Context, command string) ([]GuildCount, error)
	// GuildCommand is the use count of a command owned by guildID.
	GuildCommand(ctx context.Context, command, guildID string) (int64, bool, error)
}

type StatsRepository interface {
	StatsRecorder
	StatsReader
}

type PostgresStatsRepository struct {
	db *pgxpool.Pool
}

func NewPostgresStatsRepository(db *pgxpool.Pool) *PostgresStatsRepository {
	return &PostgresStatsRepository{db: db}
}

const (
	guildUsageQuery = `
	INSERT INTO guild_stats (cmd_name, guild_id)
	VALUES ($1, $2)
	ON CONFLICT (cmd_name, guild_id) DO UPDATE SET
		usage_count = guild_stats.usage_count + 1
	`
	globalUsageQuery = `
	INSERT INTO global_stats (cmd_name, used_in_guild_id)
	VALUES ($1, $2)
	ON CONFLICT (cmd_name, used_in_guild_id) DO UPDATE SET
		usage_count = global_stats.usage_count + 1
	`
)

// Record counts usages in a single transaction.
func (r *PostgresStatsRepository) Record(ctx context.Context, usages ...Usage) error {
	if len(usages) == 0 {
		return nil
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			slog.Error("failed to rollback transaction", "error", err)
		}
	}()

	batch := &pgx.Batch{}
	for _, u := range usages {
		if u.Scope.IsGlobal() {
			batch.Queue(globalUsageQuery, u.Command, u.GuildID)
		} else {
			batch.Queue(guildUsageQuery, u.Command, u.Scope.GuildID())
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to record usages: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func collectCommandCounts(rows pgx.Rows) ([]CommandCount, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (CommandCount, error) {
		var c CommandCount
		err := row.Scan(&c.Command, &c.Count)
		return c, err
	})
}

func (r *PostgresStatsRepository) GlobalTotals(ctx context.Context) ([]CommandCount, error) {
	const query = `
	SELECT cmd_name, SUM(usage_count)::BIGINT
	FROM global_stats
	GROUP BY cmd_name
	ORDER BY SUM(usage_count), cmd_name
	`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query global totals: %w", err)
	}
	return collectCommandCounts(rows)
}

func (r *PostgresStatsRepository) GuildTotals(ctx context.Context, guildID string) ([]CommandCount, error) {
	const query = `
	SELECT cmd_name, SUM(usage_count)::BIGINT
	FROM guild_stats
	WHERE guild_id = $1
	GROUP BY cmd_name
	ORDER BY SUM(usage_count), cmd_name
	`
	rows, err := r.db.Query(ctx, query, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to query guild totals: %w", err)
	}
	return collectCommandCounts(rows)
}

func (r *PostgresStatsRepository) GlobalByGuild(ctx context.Context, command string) ([]GuildCount, error) {
	const query = `
	SELECT used_in_guild_id, usage_count
	FROM global_stats
	WHERE cmd_name = $1
	ORDER BY used_in_guild_id
	`
	rows, err := r.db.Query(ctx, query, command)
	if err != nil {
		return nil, fmt.Errorf("failed to query command stats: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (GuildCount, error) {
		var g GuildCount
		err := row.Scan(&g.GuildID, &g.Count)
		return g, err
	})
}

func (r *PostgresStatsRepository) GuildCommand(ctx context.Context, command, guildID string) (int64, bool, error) {
	const query = `
	SELECT usage_count
	FROM guild_stats
	WHERE cmd_name = $1 AND guild_id = $2
	`
	var count int64
	err := r.db.QueryRow(ctx, query, command, guildID).Scan(&count)
	if err == pgx.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to query command stats: %w", err)
	}
	return count, true, nil
}

var _ StatsRepository = (*PostgresStatsRepository)(nil)

type statsKey struct {
	command string
	guildID string
}

// MemoryStatsRepository keeps counters for the lifetime of the process.
type MemoryStatsRepository struct {
	mu     sync.RWMutex
	global map[statsKey]int64
	guild  map[statsKey]int64
}

func NewMemoryStatsRepository() *MemoryStatsRepository {
	return &MemoryStatsRepository{
		global: make(map[statsKey]int64),
		guild:  make(map[statsKey]int64),
	}
}

func (r *MemoryStatsRepository) Record(ctx context.Context, usages ...Usage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range usages {
		if u.Scope.IsGlobal() {
			r.global[statsKey{u.Command, u.GuildID}]++
		} else {
			r.guild[statsKey{u.Command, u.Scope.GuildID()}]++
		}
	}
	return nil
}

func sortedTotals(totals map[string]int64) []CommandCount {
	counts := make([]CommandCount, 0, len(totals))
	for command, count := range totals {
		counts = append(counts, CommandCount{Command: command, Count: count})
	}
	slices.SortFunc(counts, func(a, b CommandCount) int {
		return cmp.Or(cmp.Compare(a.Count, b.Count), cmp.Compare(a.Command, b.Command))
	})
	return counts
}

func (r *MemoryStatsRepository) GlobalTotals(ctx context.Context) ([]CommandCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	totals := make(map[string]int64)
	for k, n := range r.global {
		totals[k.command] += n
	}
	return sortedTotals(totals), nil
}

func (r *MemoryStatsRepository) GuildTotals(ctx context.Context, guildID string) ([]CommandCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	totals := make(map[string]int64)
	for k, n := range r.guild {
		if k.guildID == guildID {
			totals[k.command] += n
		}
	}
	return sortedTotals(totals), nil
}

func (r *MemoryStatsRepository) GlobalByGuild(ctx context.Context, command string) ([]GuildCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var counts []GuildCount
	for k, n := range r.global {
		if k.command == command {
			counts = append(counts, GuildCount{GuildID: k.guildID, Count: n})
		}
	}
	slices.SortFunc(counts, func(a, b GuildCount) int {
		return cmp.Compare(a.GuildID, b.GuildID)
	})
	return counts, nil
}

func (r *MemoryStatsRepository) GuildCommand(ctx context.Context, command, guildID string) (int64, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count, ok := r.guild[statsKey{command, guildID}]
	return count, ok, nil
}

var _ StatsRepository = (*MemoryStatsRepository)(nil)
