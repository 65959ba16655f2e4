package engine

import (
	"encoding/binary"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/golang/snappy"
	"github.com/machbase/neo-append/api/cmi"
	"github.com/machbase/neo-append/mods/logging"
	"github.com/pkg/errors"
)

// Store keeps accepted rows in badger under "r/<table>/<seq>".
// Values are snappy compressed, the first byte is the row endian.
type Store struct {
	db     *badger.DB
	mu     sync.Mutex
	seqs   map[string]*badger.Sequence
	closed bool
}

// OpenStore opens the store in dir, an empty dir keeps rows in memory.
func OpenStore(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(&badgerLogger{log: logging.GetLog("engine-store")})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %q", dir)
	}
	return &Store{db: db, seqs: map[string]*badger.Sequence{}}, nil
}

func rowPrefix(table string) []byte {
	return []byte("r/" + table + "/")
}

func (s *Store) sequence(table string) (*badger.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("store closed")
	}
	if seq, ok := s.seqs[table]; ok {
		return seq, nil
	}
	seq, err := s.db.GetSequence([]byte("s/"+table), 1000)
	if err != nil {
		return nil, err
	}
	s.seqs[table] = seq
	return seq, nil
}

// Write stores the rows of one batch.
func (s *Store) Write(table string, endian cmi.Endian, rows [][]byte) error {
	if len(rows) == 0 {
		return nil
	}
	seq, err := s.sequence(table)
	if err != nil {
		return errors.Wrapf(err, "sequence of %s", table)
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	prefix := rowPrefix(table)
	for _, row := range rows {
		n, err := seq.Next()
		if err != nil {
			return errors.Wrapf(err, "sequence of %s", table)
		}
		key := binary.BigEndian.AppendUint64(append([]byte{}, prefix...), n)
		raw := make([]byte, 0, len(row)+1)
		raw = append(raw, byte(endian))
		raw = append(raw, row...)
		if err := wb.Set(key, snappy.Encode(nil, raw)); err != nil {
			return errors.Wrapf(err, "write %s", table)
		}
	}
	return errors.Wrapf(wb.Flush(), "write %s", table)
}

// Scan calls fn with the rows of the table in append order until fn
// returns false.
func (s *Store) Scan(table string, fn func(row []byte, endian cmi.Endian) bool) error {
	prefix := rowPrefix(table)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			raw, err := snappy.Decode(nil, val)
			if err != nil {
				return errors.Wrapf(err, "decode %s", it.Item().Key())
			}
			if len(raw) == 0 {
				continue
			}
			if !fn(raw[1:], cmi.Endian(raw[0])) {
				return nil
			}
		}
		return nil
	})
}

func (s *Store) Count(table string) (int, error) {
	prefix := rowPrefix(table)
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, err
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, seq := range s.seqs {
		_ = seq.Release()
	}
	return s.db.Close()
}

type badgerLogger struct {
	log logging.Log
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(format string, args ...any)   { l.log.Errorf(format, args...) }
func (l *badgerLogger) Warningf(format string, args ...any) { l.log.Warnf(format, args...) }
func (l *badgerLogger) Infof(format string, args ...any)    { l.log.Debugf(format, args...) }
func (l *badgerLogger) Debugf(format string, args ...any)   { l.log.Tracef(format, args...) }
