package kv

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"go.etcd.io/bbolt"
)

type Bolt struct {
	bucket []byte
	db     *bbolt.DB
}

func (b *Bolt) Get(key string) ([]byte, error) {
	var val []byte

	if err := b.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(b.bucket).Get([]byte(key)); v != nil {
			val = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if val == nil {
		return nil, ErrNotFound
	}
	return val, nil
}

func (b *Bolt) Set(key string, val []byte) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).Put([]byte(key), val)
	})
}

func (b *Bolt) Delete(key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	})
}

func (b *Bolt) ForEach(fn func(key string, value []byte) error) error {
	return b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(b.bucket).ForEach(func(k, v []byte) error {
			return fn(string(k), append([]byte(nil), v...))
		})
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

// DefaultPath returns $HOME/.botmanager/<name>, falling back to the working
// directory when the home directory is unusable.
func DefaultPath(name string) string {
	dir, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	dir = filepath.Join(dir, ".botmanager")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return name
	}
	return filepath.Join(dir, name)
}

// NewBoltKV opens path and returns a KV over bucket.
func NewBoltKV(path, bucket string) (KV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create kv dir")
	}
	boltDB, err := bbolt.Open(path, 0o666, &bbolt.Options{
		Timeout:    time.Second,
		NoGrowSync: false,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	kv, err := New(Options{Bucket: bucket, DB: boltDB})
	if err != nil {
		boltDB.Close()
		return nil, err
	}
	return kv, nil
}
