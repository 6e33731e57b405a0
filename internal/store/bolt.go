package store

import (
	"bytes"
	"fmt"

	"go.etcd.io/bbolt"
)

var (
	seriesBucketPrefix = []byte("s:")
	hashBucketPrefix   = []byte("h:")
)

// Bolt is the file-backed backend: one bbolt bucket per series key,
// members stored as bucket keys with empty values so bbolt's key
// ordering is the set ordering.
type Bolt struct {
	db *bbolt.DB
}

// OpenBolt opens or creates the store file at path.
func OpenBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt store: %w", err)
	}
	return &Bolt{db: db}, nil
}

func seriesBucket(key string) []byte {
	return append(append([]byte{}, seriesBucketPrefix...), key...)
}

func hashBucket(key string) []byte {
	return append(append([]byte{}, hashBucketPrefix...), key...)
}

func (s *Bolt) Add(key string, member []byte) error {
	return s.AddBatch(key, [][]byte{member})
}

func (s *Bolt) AddBatch(key string, members [][]byte) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(seriesBucket(key))
		if err != nil {
			return err
		}
		for _, member := range members {
			if err := b.Put(member, nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Bolt) Rem(key string, members ...[]byte) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		name := seriesBucket(key)
		b := tx.Bucket(name)
		if b == nil {
			return nil
		}
		for _, member := range members {
			if b.Get(member) == nil {
				// bbolt stores empty values as nil; probe via cursor.
				if k, _ := b.Cursor().Seek(member); !bytes.Equal(k, member) {
					continue
				}
			}
			if err := b.Delete(member); err != nil {
				return err
			}
			removed++
		}
		return dropIfEmpty(tx, name, b)
	})
	return removed, err
}

// dropIfEmpty removes the bucket once its last member is gone, so an
// emptied series stops existing.
func dropIfEmpty(tx *bbolt.Tx, name []byte, b *bbolt.Bucket) error {
	if k, _ := b.Cursor().First(); k == nil {
		return tx.DeleteBucket(name)
	}
	return nil
}

func (s *Bolt) collect(key, min, max string) ([][]byte, error) {
	r, err := parseRange(min, max)
	if err != nil {
		return nil, err
	}
	var out [][]byte
	err = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(seriesBucket(key))
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			member := string(k)
			if r.contains(member) {
				out = append(out, append([]byte{}, k...))
			} else if !r.belowMax(member) {
				break
			}
		}
		return nil
	})
	return out, err
}

func (s *Bolt) RangeByLex(key, min, max string, rev bool, offset, count int) ([][]byte, error) {
	members, err := s.collect(key, min, max)
	if err != nil {
		return nil, err
	}
	return window(members, rev, offset, count), nil
}

func (s *Bolt) LexCount(key, min, max string) (int, error) {
	members, err := s.collect(key, min, max)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

func (s *Bolt) RemRangeByLex(key, min, max string) (int, error) {
	members, err := s.collect(key, min, max)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	return s.Rem(key, members...)
}

func (s *Bolt) Card(key string) (int, error) {
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(seriesBucket(key))
		if b == nil {
			return nil
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Bolt) HSet(key, field, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(hashBucket(key))
		if err != nil {
			return err
		}
		return b.Put([]byte(field), []byte(value))
	})
}

func (s *Bolt) HGetAll(key string) (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(hashBucket(key))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}

func (s *Bolt) Type() string { return "bolt" }

func (s *Bolt) Close() error { return s.db.Close() }
