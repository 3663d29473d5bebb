package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/config"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/factory"
	"github.com/Loothore907/decentralized-engagement-metrics-mvp/internal/model"
)

func newTestApp(t *testing.T) (*app, *bytes.Buffer) {
	t.Helper()
	cfg := config.NewForTesting()
	cfg.SQLitePath = filepath.Join(t.TempDir(), "ctl.db")
	st, err := factory.NewStore(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	var buf bytes.Buffer
	return &app{cfg: cfg, proj: &config.Project{}, log: zerolog.Nop(), store: st, out: &buf}, &buf
}

func TestPrintOutcome_FailureIsError(t *testing.T) {
	a, buf := newTestApp(t)
	err := a.printOutcome(model.Failed(model.ReasonDuplicateWallet, "wallet is already bound"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate_wallet")

	var out model.Outcome
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, model.ReasonDuplicateWallet, out.Reason)
}

func TestIdentities_ArchiveWithoutResolver(t *testing.T) {
	a, buf := newTestApp(t)
	svc, err := a.identities(nil)
	require.NoError(t, err)

	_, err = svc.Observe(context.Background(), "1001", "alice", 3)
	require.NoError(t, err)
	require.NoError(t, a.printOutcome(svc.Archive(context.Background(), "@alice")))
	assert.Contains(t, buf.String(), `"archived": true`)
}

func TestRootCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"register"}, {"add-wallet"}, {"get"}, {"list"}, {"archive"}, {"reactivate"},
		{"ingest", "accounts"}, {"ingest", "keywords"}, {"ingest", "run"},
		{"eligible", "add"}, {"seed"}, {"top"},
	} {
		cmd, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}
