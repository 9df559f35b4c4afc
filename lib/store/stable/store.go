package stable

import (
	"errors"
	"unicode/utf8"

	"github.com/ValentinKolb/sKV/lib/codec"
	"github.com/ValentinKolb/sKV/lib/db"
	"github.com/ValentinKolb/sKV/lib/db/btree"
	"github.com/ValentinKolb/sKV/lib/memmgr"
	"github.com/ValentinKolb/sKV/lib/memory"
	"github.com/ValentinKolb/sKV/lib/principal"
	"github.com/ValentinKolb/sKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

// ErrNotInitialized is returned by Open for buckets that never held a store.
var ErrNotInitialized = btree.ErrNotInitialized

type storeImpl struct {
	bucket memmgr.BucketID
	data   *btree.BTreeMap[principal.Principal, Record]
}

// New binds the store to bucket, formatting the bucket on first use.
func New(mm *memmgr.MemoryManager, bucket memmgr.BucketID) (store.IStore, error) {
	return attach(mm, bucket, btree.Init[principal.Principal, Record])
}

// Open binds the store to an already formatted bucket and never writes.
// It returns ErrNotInitialized if the bucket holds no store yet.
func Open(mm *memmgr.MemoryManager, bucket memmgr.BucketID) (store.IStore, error) {
	return attach(mm, bucket, btree.Load[principal.Principal, Record])
}

type attachFunc func(memory.IMemory, codec.Codec[principal.Principal], codec.Codec[Record], *btree.Options) (*btree.BTreeMap[principal.Principal, Record], error)

func attach(mm *memmgr.MemoryManager, bucket memmgr.BucketID, fn attachFunc) (store.IStore, error) {
	b, err := mm.GetBucket(bucket)
	if err != nil {
		return nil, err
	}
	data, err := fn(b, principal.Codec(), RecordCodec(), nil)
	if err != nil {
		return nil, err
	}
	log.Debugf("attached store to bucket %d (%d entries)", bucket, data.Len())
	return &storeImpl{bucket: bucket, data: data}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) SetDataForPrincipal(p principal.Principal, data string) error {
	if !utf8.ValidString(data) {
		return store.NewError(store.RetCInvalidData, "data is not valid utf-8")
	}
	if _, err := s.data.Insert(p, Record{Data: data}); err != nil {
		log.Errorf("bucket %d: set for %s failed: %v", s.bucket, p, err)
		return toStoreError(err)
	}
	return nil
}

func (s *storeImpl) GetDataForPrincipal(p principal.Principal) (string, error) {
	r, found, err := s.data.Get(p)
	if err != nil {
		log.Warningf("bucket %d: get for %s failed: %v", s.bucket, p, err)
		return "", toStoreError(err)
	}
	if !found {
		return store.NoDataFound, nil
	}
	return r.Data, nil
}

func (s *storeImpl) GetDBInfo() (db.DatabaseInfo, error) {
	return s.data.GetInfo(), nil
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func toStoreError(err error) *store.Error {
	switch {
	case errors.Is(err, codec.ErrDecode):
		return store.NewError(store.RetCDecodeError, err.Error())
	case errors.Is(err, btree.ErrKeyTooLarge):
		return store.NewError(store.RetCInvalidKey, err.Error())
	case errors.Is(err, memory.ErrAllocationFailed), errors.Is(err, memmgr.ErrOutOfPages):
		return store.NewError(store.RetCAllocationFailed, err.Error())
	default:
		return store.NewError(store.RetCInternalError, err.Error())
	}
}
