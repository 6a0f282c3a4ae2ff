package app_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/insight-crawler/internal/app"
	"github.com/JakeFAU/insight-crawler/internal/config"
	pubmemory "github.com/JakeFAU/insight-crawler/internal/publisher/memory"
	"github.com/JakeFAU/insight-crawler/internal/storage/local"
	"github.com/JakeFAU/insight-crawler/internal/storage/memory"
)

func baseConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	return cfg
}

func TestNew_MemoryProviders(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Archive.Provider = "memory"
	cfg.PubSub.Provider = "memory"

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &memory.Store{}, a.Store)
	assert.IsType(t, &memory.BlobStore{}, a.Archive)
	assert.IsType(t, &pubmemory.Publisher{}, a.Publisher)
	require.NotNil(t, a.Orchestrator)
	require.NotNil(t, a.NewServer())

	orgs, err := a.Orchestrator.InitializeOrganizations(context.Background())
	require.NoError(t, err)
	assert.Len(t, orgs, len(cfg.Organizations))

	stats, err := a.Orchestrator.GetCrawlStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, len(cfg.Organizations), stats.Organizations)

	require.NoError(t, a.Migrate(context.Background()))
}

func TestNew_DisabledOptionalProviders(t *testing.T) {
	a, err := app.New(context.Background(), baseConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Archive)
	assert.Nil(t, a.Publisher)
}

func TestNew_LocalArchive(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Archive.Provider = "local"
	cfg.Archive.LocalDir = t.TempDir()

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	assert.IsType(t, &local.BlobStore{}, a.Archive)
}

func TestNew_Scheduler(t *testing.T) {
	cfg := baseConfig(t)
	cfg.Schedule.Crawl = "0 */6 * * *"
	cfg.Schedule.Process = "@every 10m"

	a, err := app.New(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	s, err := a.NewScheduler()
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())
}

func TestNew_Failures(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "unknown storage", mutate: func(c *config.Config) { c.Storage.Provider = "sqlite" }},
		{name: "bad dsn", mutate: func(c *config.Config) {
			c.Storage.Provider = "postgres"
			c.DB.DSN = "postgres://user@localhost:notaport/insight"
		}},
		{name: "unknown archive", mutate: func(c *config.Config) { c.Archive.Provider = "s3" }},
		{name: "unknown pubsub", mutate: func(c *config.Config) { c.PubSub.Provider = "kafka" }},
		{name: "duplicate slug", mutate: func(c *config.Config) {
			c.Organizations = append(c.Organizations, c.Organizations[0])
		}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := baseConfig(t)
			tc.mutate(&cfg)
			a, err := app.New(context.Background(), cfg, nil)
			require.Error(t, err)
			require.Nil(t, a)
		})
	}
}
