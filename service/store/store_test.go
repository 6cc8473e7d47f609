package store

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	ds "github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	"github.com/stepauction/kickbot/lib/auction"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	mem := dssync.MutexWrap(ds.NewMapDatastore())
	t.Cleanup(func() { _ = mem.Close() })
	return NewStore(mem)
}

func cycleRecords() []*DeploymentRecord {
	return []*DeploymentRecord{
		{Variant: auction.Minute, Address: "0x5FbDB2315678afecb367f032d93F642f64180aa3", TxHash: "0x01", BlockNumber: 1},
		{Variant: auction.Medium, Address: "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512", TxHash: "0x02", BlockNumber: 2},
		{Variant: auction.Small, Address: "0x9fE46736679d2D9a65F0992F2272dE9f3c7fa6e0", TxHash: "0x03", BlockNumber: 3},
	}
}

func TestSaveAndListDeployments(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	recs := cycleRecords()
	cycle, err := s.SaveDeploymentCycle(ctx, 31337, recs)
	require.NoError(t, err)
	require.NotEmpty(t, cycle)
	for _, rec := range recs {
		require.NotEmpty(t, rec.ID)
		require.Equal(t, cycle, rec.Cycle)
		require.Equal(t, uint64(31337), rec.ChainID)
		require.False(t, rec.CreatedAt.IsZero())
	}

	listed, err := s.ListDeployments(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 3)
	// Newest first.
	require.Equal(t, auction.Small, listed[0].Variant)
	require.Equal(t, auction.Minute, listed[2].Variant)

	got, err := s.GetDeployment(ctx, recs[1].ID)
	require.NoError(t, err)
	require.Equal(t, auction.Medium, got.Variant)

	_, err = s.GetDeployment(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestLatestCycle(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.LatestCycle(ctx)
	require.ErrorIs(t, err, ErrRecordNotFound)

	_, err = s.SaveDeploymentCycle(ctx, 31337, cycleRecords())
	require.NoError(t, err)

	second := cycleRecords()
	second[0].Address = "0xCf7Ed3AccA5a467e9e704C703E8D87F634fB0Fc9"
	cycle, err := s.SaveDeploymentCycle(ctx, 31337, second)
	require.NoError(t, err)

	latest, err := s.LatestCycle(ctx)
	require.NoError(t, err)
	require.Len(t, latest, 3)
	for _, rec := range latest {
		require.Equal(t, cycle, rec.Cycle)
	}
	// Deploy order, not key order.
	require.Equal(t, auction.Minute, latest[0].Variant)
	require.Equal(t, second[0].Address, latest[0].Address)
}

func TestSaveAndListKicks(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	ok := &KickRecord{Target: "0x5FbDB2315678afecb367f032d93F642f64180aa3", TxHash: "0xaa", BlockNumber: 7}
	failed := &KickRecord{Target: "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512", ErrorCause: "no contract code at given address"}
	require.NoError(t, s.SaveKick(ctx, ok))
	require.NoError(t, s.SaveKick(ctx, failed))

	kicks, err := s.ListKicks(ctx)
	require.NoError(t, err)
	require.Len(t, kicks, 2)
	require.Equal(t, failed.Target, kicks[0].Target)
	require.NotEmpty(t, kicks[0].ErrorCause)
	require.Empty(t, kicks[1].ErrorCause)
}

func TestExportJSON(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.SaveDeploymentCycle(ctx, 31337, cycleRecords())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.ExportJSON(ctx, &buf))

	var doc struct {
		ChainID   uint64 `json:"chainId"`
		Contracts map[string]struct {
			Address     string `json:"address"`
			BlockNumber uint64 `json:"blockNumber"`
		} `json:"contracts"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, uint64(31337), doc.ChainID)
	require.Len(t, doc.Contracts, 3)
	require.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", doc.Contracts["minute"].Address)
	require.NotZero(t, doc.Contracts["small"].BlockNumber)
}
