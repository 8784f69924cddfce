package pageledger

import (
	"fmt"
	"slices"

	"github.com/ipfs/go-cid"
)

// ObjectStore is the content-addressable blob store for one page. It holds
// each key's value and every node of each snapshot's key index. Put is
// idempotent: storing equal bytes twice yields the same id and writes once.
type ObjectStore struct {
	db   *DB
	page PageID
}

func (os *ObjectStore) Put(data []byte) (ObjectID, error) {
	id := ComputeObjectID(data)
	err := os.db.update(func(tx storageTx) error {
		b := tx.Bucket(bucketObjects, os.page.String())
		if b == nil {
			return ErrBucketNotFound
		}
		return txObjects{b}.putKnown(id, data)
	})
	if err != nil {
		return UndefID, pageErrf(os.page, "put object", err)
	}
	return id, nil
}

func (os *ObjectStore) Get(id ObjectID) ([]byte, error) {
	var data []byte
	err := os.db.view(func(tx storageTx) error {
		b := tx.Bucket(bucketObjects, os.page.String())
		if b == nil {
			return ErrBucketNotFound
		}
		var err error
		data, err = txObjects{b}.GetObject(id)
		return err
	})
	if err != nil {
		return nil, pageErrf(os.page, "get object", err)
	}
	return data, nil
}

func (os *ObjectStore) Has(id ObjectID) (bool, error) {
	var found bool
	err := os.db.view(func(tx storageTx) error {
		b := tx.Bucket(bucketObjects, os.page.String())
		if b == nil {
			return ErrBucketNotFound
		}
		found = b.Get(id.Bytes()) != nil
		return nil
	})
	return found, err
}

// txObjects adapts one page's objects bucket within a single storage
// transaction to the btree.Store interface, so tree reads and writes share
// the transaction's atomicity.
type txObjects struct {
	b storageBucket
}

func (o txObjects) GetObject(id cid.Cid) ([]byte, error) {
	v := o.b.Get(id.Bytes())
	if v == nil {
		return nil, fmt.Errorf("object %s: %w", IDString(id), ErrNotFound)
	}
	// Bolt value slices are only valid until the tx ends.
	return slices.Clone(v), nil
}

func (o txObjects) PutObject(data []byte) (cid.Cid, error) {
	id := ComputeObjectID(data)
	return id, o.putKnown(id, data)
}

func (o txObjects) putKnown(id cid.Cid, data []byte) error {
	key := id.Bytes()
	if o.b.Get(key) != nil {
		return nil // content-addressed: already stored
	}
	return o.b.Put(key, data)
}
