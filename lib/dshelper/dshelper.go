package dshelper

import (
	"context"
	"fmt"
	"os"
	"time"

	ds "github.com/ipfs/go-datastore"
	badger "github.com/textileio/go-ds-badger3"
	mongods "github.com/textileio/go-ds-mongo"
)

// NewBadgerDatastore returns a new datastore backed by Badger at repoPath.
func NewBadgerDatastore(repoPath string) (ds.Datastore, error) {
	if err := os.MkdirAll(repoPath, os.ModePerm); err != nil {
		return nil, err
	}
	return badger.NewDatastore(repoPath, &badger.DefaultOptions)
}

// NewMongoDatastore returns a new datastore backed by MongoDB, for runs that
// need records shared outside the local file system.
func NewMongoDatastore(uri, dbName string) (ds.Datastore, error) {
	mongoCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()

	if uri == "" {
		return nil, fmt.Errorf("mongo uri is empty")
	}
	if dbName == "" {
		return nil, fmt.Errorf("mongo database name is empty")
	}
	mds, err := mongods.New(mongoCtx, uri, dbName)
	if err != nil {
		return nil, fmt.Errorf("opening mongo datastore: %s", err)
	}
	return mds, nil
}
