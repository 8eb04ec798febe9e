package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/lakesync/pkg/config"
	"github.com/exploopio/lakesync/pkg/logging"
	"github.com/exploopio/lakesync/pkg/metrics"
)

func testApp(t *testing.T) *app {
	t.Helper()
	logger, err := logging.NewZapLogger(logging.Options{Level: logging.LevelSilent})
	require.NoError(t, err)
	cfg := config.DefaultConfig()
	cfg.Search.DomainsIndex = "lake-domains"
	return &app{cfg: cfg, logger: logger, metrics: metrics.OrNop(nil)}
}

func TestApp_Jobs(t *testing.T) {
	a := testApp(t)

	jobs, err := a.jobs(nil, nil, "all", "domains")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "organizations", jobs[0].Name())
	assert.Equal(t, "organizations", jobs[0].Index())
	assert.Equal(t, "domains", jobs[1].Name())
	assert.Equal(t, "lake-domains", jobs[1].Index())

	_, err = a.jobs(nil, nil, "tickets")
	assert.Error(t, err)
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"migrate"},
		{"ingest", "organizations"},
		{"ingest", "vulnscans"},
		{"ingest", "tickets"},
		{"ingest", "domains"},
		{"ingest", "kev"},
		{"index", "sync"},
		{"index", "rebuild"},
		{"serve"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}

	for _, name := range []string{"config", "log-level", "log-format"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), name)
	}
	sync, _, err := rootCmd.Find([]string{"index", "sync"})
	require.NoError(t, err)
	assert.Equal(t, "all", sync.Flags().Lookup("index").DefValue)
}
