package store

import (
	"bytes"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Badger is the LSM backend. Members live at
// 's' 0x00 <series key> 0x00 <member>, so badger's lexicographic key
// order within a series prefix is the set ordering. Hash fields live
// under an 'h' prefix with their value as the badger value.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens or creates a badger store in dir.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Badger{db: db}, nil
}

func badgerSeriesPrefix(key string) []byte {
	p := make([]byte, 0, len(key)+3)
	p = append(p, 's', 0x00)
	p = append(p, key...)
	return append(p, 0x00)
}

func badgerHashPrefix(key string) []byte {
	p := make([]byte, 0, len(key)+3)
	p = append(p, 'h', 0x00)
	p = append(p, key...)
	return append(p, 0x00)
}

func (s *Badger) Add(key string, member []byte) error {
	return s.AddBatch(key, [][]byte{member})
}

func (s *Badger) AddBatch(key string, members [][]byte) error {
	prefix := badgerSeriesPrefix(key)
	return s.db.Update(func(txn *badger.Txn) error {
		for _, member := range members {
			if err := txn.Set(append(append([]byte{}, prefix...), member...), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Badger) Rem(key string, members ...[]byte) (int, error) {
	prefix := badgerSeriesPrefix(key)
	removed := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, member := range members {
			k := append(append([]byte{}, prefix...), member...)
			if _, err := txn.Get(k); err == badger.ErrKeyNotFound {
				continue
			} else if err != nil {
				return err
			}
			if err := txn.Delete(k); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

func (s *Badger) collect(key, min, max string) ([][]byte, error) {
	r, err := parseRange(min, max)
	if err != nil {
		return nil, err
	}
	prefix := badgerSeriesPrefix(key)
	var out [][]byte
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := it.Item().Key()
			member := string(bytes.TrimPrefix(k, prefix))
			if r.contains(member) {
				out = append(out, []byte(member))
			} else if !r.belowMax(member) {
				break
			}
		}
		return nil
	})
	return out, err
}

func (s *Badger) RangeByLex(key, min, max string, rev bool, offset, count int) ([][]byte, error) {
	members, err := s.collect(key, min, max)
	if err != nil {
		return nil, err
	}
	return window(members, rev, offset, count), nil
}

func (s *Badger) LexCount(key, min, max string) (int, error) {
	members, err := s.collect(key, min, max)
	if err != nil {
		return 0, err
	}
	return len(members), nil
}

func (s *Badger) RemRangeByLex(key, min, max string) (int, error) {
	members, err := s.collect(key, min, max)
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}
	return s.Rem(key, members...)
}

func (s *Badger) Card(key string) (int, error) {
	prefix := badgerSeriesPrefix(key)
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

func (s *Badger) HSet(key, field, value string) error {
	k := append(badgerHashPrefix(key), field...)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, []byte(value))
	})
}

func (s *Badger) HGetAll(key string) (map[string]string, error) {
	prefix := badgerHashPrefix(key)
	out := make(map[string]string)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			field := string(bytes.TrimPrefix(item.Key(), prefix))
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[field] = string(v)
		}
		return nil
	})
	return out, err
}

func (s *Badger) Type() string { return "badger" }

func (s *Badger) Close() error { return s.db.Close() }
