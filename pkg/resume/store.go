// Package resume persists the last record each monitor has seen so a
// restarted process can pick up where it left off.
package resume

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/model"
)

var (
	ErrCorrupt = errors.New("resume point is corrupt")
	ErrClosed  = errors.New("resume store is closed")
)

const (
	keyPrefix       = "resume/"
	keyInvalidation = "invalidation"
)

// id, captured-at nanos and raw flags, followed by the path.
const headerSize = 8 + 8 + 4

type Store struct {
	mu     sync.Mutex
	db     *leveldb.DB
	closed bool
}

// Open opens or creates a store at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, &opt.Options{
		OpenFilesCacheCapacity: 16,
	})
	if err != nil {
		return nil, fmt.Errorf("open resume store %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory returns a store that lives only as long as the process.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}

// Save records e as the resume point of the named monitor. Older records
// never replace newer ones.
func (s *Store) Save(name string, e model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	current, ok, err := s.load(name)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return err
	}
	if ok && current.ID > e.ID && !current.CapturedAt.Before(e.CapturedAt) {
		return nil
	}

	return s.db.Put(key(name), encode(e), &opt.WriteOptions{Sync: true})
}

func (s *Store) Load(name string) (model.EventRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return model.EventRecord{}, false, ErrClosed
	}
	return s.load(name)
}

func (s *Store) load(name string) (model.EventRecord, bool, error) {
	data, err := s.db.Get(key(name), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return model.EventRecord{}, false, nil
	}
	if err != nil {
		return model.EventRecord{}, false, err
	}

	e, err := decode(data)
	if err != nil {
		return model.EventRecord{}, false, errors.Join(err, fmt.Errorf("monitor %q", name))
	}
	return e, true, nil
}

func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.Delete(key(name), nil)
}

// Names lists the monitors that have a resume point.
func (s *Store) Names() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	it := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer it.Release()

	var names []string
	for it.Next() {
		names = append(names, string(it.Key()[len(keyPrefix):]))
	}
	return names, it.Error()
}

// SaveInvalidation persists the last event id wrap so resume points taken
// before it stay rejected after a restart.
func (s *Store) SaveInvalidation(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(t.UnixNano()))
	return s.db.Put([]byte(keyInvalidation), buf, &opt.WriteOptions{Sync: true})
}

func (s *Store) LoadInvalidation() (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return time.Time{}, false, ErrClosed
	}

	data, err := s.db.Get([]byte(keyInvalidation), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if len(data) != 8 {
		return time.Time{}, false, ErrCorrupt
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(data))), true, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func encode(e model.EventRecord) []byte {
	buf := make([]byte, headerSize+len(e.Path))
	binary.BigEndian.PutUint64(buf[0:8], e.ID)
	binary.BigEndian.PutUint64(buf[8:16], uint64(e.CapturedAt.UnixNano()))
	binary.BigEndian.PutUint32(buf[16:20], uint32(e.Flags))
	copy(buf[headerSize:], e.Path)
	return buf
}

// decode rebuilds the record from its raw flags; the stored path is already
// normalized.
func decode(data []byte) (model.EventRecord, error) {
	if len(data) < headerSize {
		return model.EventRecord{}, ErrCorrupt
	}

	id := binary.BigEndian.Uint64(data[0:8])
	at := int64(binary.BigEndian.Uint64(data[8:16]))
	flags := model.FlagSet(binary.BigEndian.Uint32(data[16:20]))

	e := model.Build(id, string(data[headerSize:]), flags, nil, nil)
	e.CapturedAt = time.Unix(0, at)
	return e, nil
}
