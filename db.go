package pageledger

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

// InMemory selects the transient in-memory backend instead of a Bolt file.
const InMemory = ":memory:"

// DB owns the shared storage backend behind all pages. Open one DB per data
// file and obtain per-page commit graph stores from Page.
type DB struct {
	stg    storage
	bdb    *bbolt.DB // nil for in-memory
	logger *slog.Logger
	now    func() time.Time

	pagesMu sync.Mutex
	pages   map[PageID]*Store

	ReadCount  atomic.Uint64
	WriteCount atomic.Uint64
}

type Options struct {
	Logger    *slog.Logger
	IsTesting bool
	MmapSize  int
	Now       func() time.Time // timestamp source for new commits
}

func Open(path string, opt Options) (*DB, error) {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Logger == nil {
		opt.Logger = slog.Default()
	}

	var stg storage
	var bdb *bbolt.DB
	if path == InMemory {
		stg = newMemStorage()
	} else {
		bopt := *bbolt.DefaultOptions
		bopt.Timeout = 10 * time.Second
		if opt.IsTesting {
			bopt.NoSync = true
			bopt.NoFreelistSync = true
			bopt.InitialMmapSize = 1024 * 1024 * 5
		} else {
			bopt.InitialMmapSize = 1024 * 1024 * 1024
			bopt.FreelistType = bbolt.FreelistMapType
		}
		if opt.MmapSize != 0 {
			bopt.InitialMmapSize = opt.MmapSize
		}

		var err error
		bdb, err = bbolt.Open(path, 0666, &bopt)
		if err != nil {
			return nil, fmt.Errorf("pageledger: %w", err)
		}
		stg = newBoltStorage(bdb)
	}

	return &DB{
		stg:    stg,
		bdb:    bdb,
		logger: opt.Logger,
		now:    opt.Now,
		pages:  make(map[PageID]*Store),
	}, nil
}

// Bolt exposes the underlying Bolt handle (nil for in-memory databases).
func (db *DB) Bolt() *bbolt.DB {
	return db.bdb
}

func (db *DB) Close() {
	err := db.stg.Close()
	if err != nil {
		panic(fmt.Errorf("pageledger: closing: %w", err))
	}
}

func (db *DB) view(f func(tx storageTx) error) error {
	tx, err := db.stg.BeginTx(false)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	db.ReadCount.Add(1)
	return f(tx)
}

func (db *DB) update(f func(tx storageTx) error) error {
	tx, err := db.stg.BeginTx(true)
	if err != nil {
		return err
	}
	if err := f(tx); err != nil {
		tx.Rollback()
		return err
	}
	db.WriteCount.Add(1)
	return tx.Commit()
}
