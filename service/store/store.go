// Package store persists the outcomes of deployment cycles and kick runs so
// later commands can default to the latest deployment and operators can audit
// past runs.
package store

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	ds "github.com/ipfs/go-datastore"
	dsq "github.com/ipfs/go-datastore/query"
	"github.com/oklog/ulid/v2"
	"github.com/stepauction/kickbot/lib/auction"
	golog "github.com/textileio/go-log/v2"
)

var (
	log = golog.Logger("kickbot/store")

	// ErrRecordNotFound indicates the requested record was not found.
	ErrRecordNotFound = errors.New("record not found")

	// dsDeploymentsPrefix is the prefix for deployment records.
	// Structure: /deployments/<id> -> DeploymentRecord.
	dsDeploymentsPrefix = ds.NewKey("/deployments")

	// dsKicksPrefix is the prefix for kick records.
	// Structure: /kicks/<id> -> KickRecord.
	dsKicksPrefix = ds.NewKey("/kicks")
)

// DeploymentRecord describes one mined contract creation within a cycle.
type DeploymentRecord struct {
	ID          string
	Cycle       string
	Variant     auction.Variant
	Address     string
	TxHash      string
	BlockNumber uint64
	ChainID     uint64
	CreatedAt   time.Time
}

// KickRecord describes one kick attempt, mined or failed.
type KickRecord struct {
	ID          string
	Target      string
	TxHash      string
	BlockNumber uint64
	ErrorCause  string
	CreatedAt   time.Time
}

// Store provides persistence for deployment and kick records.
type Store struct {
	store ds.Datastore

	entropyLk sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

// NewStore returns a new Store backed by the given datastore.
func NewStore(store ds.Datastore) *Store {
	return &Store{store: store}
}

// SaveDeploymentCycle persists the records of one cycle under a shared cycle
// id and returns that id. The records are stamped in place.
func (s *Store) SaveDeploymentCycle(ctx context.Context, chainID uint64, recs []*DeploymentRecord) (string, error) {
	cycle, err := s.newID()
	if err != nil {
		return "", fmt.Errorf("creating cycle id: %v", err)
	}
	for _, rec := range recs {
		id, err := s.newID()
		if err != nil {
			return "", fmt.Errorf("creating record id: %v", err)
		}
		rec.ID = id
		rec.Cycle = cycle
		rec.ChainID = chainID
		rec.CreatedAt = time.Now()
		if err := put(ctx, s.store, dsDeploymentsPrefix.ChildString(id), rec); err != nil {
			return "", fmt.Errorf("saving deployment record: %v", err)
		}
		log.Debugf("saved deployment record %s (%s at %s)", id, rec.Variant, rec.Address)
	}
	return cycle, nil
}

// SaveKick persists one kick record, stamping its id and creation time.
func (s *Store) SaveKick(ctx context.Context, rec *KickRecord) error {
	id, err := s.newID()
	if err != nil {
		return fmt.Errorf("creating record id: %v", err)
	}
	rec.ID = id
	rec.CreatedAt = time.Now()
	if err := put(ctx, s.store, dsKicksPrefix.ChildString(id), rec); err != nil {
		return fmt.Errorf("saving kick record: %v", err)
	}
	return nil
}

// GetDeployment returns the deployment record with id.
func (s *Store) GetDeployment(ctx context.Context, id string) (*DeploymentRecord, error) {
	var rec DeploymentRecord
	if err := get(ctx, s.store, dsDeploymentsPrefix.ChildString(id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListDeployments returns all deployment records, newest first.
func (s *Store) ListDeployments(ctx context.Context) ([]DeploymentRecord, error) {
	results, err := s.store.Query(ctx, dsq.Query{
		Prefix: dsDeploymentsPrefix.String(),
		Orders: []dsq.Order{dsq.OrderByKeyDescending{}},
	})
	if err != nil {
		return nil, fmt.Errorf("querying deployments: %v", err)
	}
	defer func() { _ = results.Close() }()

	var recs []DeploymentRecord
	for res := range results.Next() {
		if res.Error != nil {
			return nil, fmt.Errorf("iterating deployments: %v", res.Error)
		}
		var rec DeploymentRecord
		if err := decode(res.Value, &rec); err != nil {
			return nil, fmt.Errorf("decoding deployment record: %v", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// ListKicks returns all kick records, newest first.
func (s *Store) ListKicks(ctx context.Context) ([]KickRecord, error) {
	results, err := s.store.Query(ctx, dsq.Query{
		Prefix: dsKicksPrefix.String(),
		Orders: []dsq.Order{dsq.OrderByKeyDescending{}},
	})
	if err != nil {
		return nil, fmt.Errorf("querying kicks: %v", err)
	}
	defer func() { _ = results.Close() }()

	var recs []KickRecord
	for res := range results.Next() {
		if res.Error != nil {
			return nil, fmt.Errorf("iterating kicks: %v", res.Error)
		}
		var rec KickRecord
		if err := decode(res.Value, &rec); err != nil {
			return nil, fmt.Errorf("decoding kick record: %v", err)
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// LatestCycle returns the records of the most recent deployment cycle, in
// deploy order.
func (s *Store) LatestCycle(ctx context.Context) ([]DeploymentRecord, error) {
	all, err := s.ListDeployments(ctx)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, ErrRecordNotFound
	}
	cycle := all[0].Cycle
	byVariant := make(map[auction.Variant]DeploymentRecord)
	for _, rec := range all {
		if rec.Cycle == cycle {
			byVariant[rec.Variant] = rec
		}
	}
	out := make([]DeploymentRecord, 0, len(byVariant))
	for _, v := range auction.DeployOrder {
		if rec, ok := byVariant[v]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ExportJSON writes the latest deployment cycle as a deployments.json
// document consumable by other tooling.
func (s *Store) ExportJSON(ctx context.Context, w io.Writer) error {
	recs, err := s.LatestCycle(ctx)
	if err != nil {
		return err
	}
	type entry struct {
		Address     string `json:"address"`
		TxHash      string `json:"txHash"`
		BlockNumber uint64 `json:"blockNumber"`
	}
	doc := struct {
		ChainID   uint64           `json:"chainId"`
		Contracts map[string]entry `json:"contracts"`
	}{
		ChainID:   recs[0].ChainID,
		Contracts: make(map[string]entry, len(recs)),
	}
	for _, rec := range recs {
		doc.Contracts[string(rec.Variant)] = entry{
			Address:     rec.Address,
			TxHash:      rec.TxHash,
			BlockNumber: rec.BlockNumber,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// newID returns new ulid-based id. ULIDs sort lexicographically by creation
// time, which is what keeps key-descending queries newest-first.
func (s *Store) newID() (string, error) {
	s.entropyLk.Lock()
	defer s.entropyLk.Unlock()
	if s.entropy == nil {
		s.entropy = ulid.Monotonic(rand.Reader, 0)
	}
	id, err := ulid.New(ulid.Timestamp(time.Now().UTC()), s.entropy)
	if errors.Is(err, ulid.ErrMonotonicOverflow) {
		s.entropy = nil
		return s.newID()
	} else if err != nil {
		return "", fmt.Errorf("generating id: %v", err)
	}
	return id.String(), nil
}

func put(ctx context.Context, store ds.Datastore, key ds.Key, value interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return fmt.Errorf("encoding record: %v", err)
	}
	return store.Put(ctx, key, buf.Bytes())
}

func get(ctx context.Context, store ds.Datastore, key ds.Key, value interface{}) error {
	data, err := store.Get(ctx, key)
	if errors.Is(err, ds.ErrNotFound) {
		return ErrRecordNotFound
	} else if err != nil {
		return fmt.Errorf("getting record: %v", err)
	}
	return decode(data, value)
}

func decode(data []byte, value interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(value)
}
