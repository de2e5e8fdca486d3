package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cuemby/crmcore/pkg/log"
	"github.com/cuemby/crmcore/pkg/metrics"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var bucketInputs = []byte("inputs")

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db     *bolt.DB
	logger zerolog.Logger
}

// NewBoltStore opens or creates the archive in dataDir
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "inputs.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketInputs); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketInputs, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, logger: log.WithComponent("storage")}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Digest is the content hash stored with every record
func Digest(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// Save archives one input under the next sequence number
func (s *BoltStore) Save(class Class, format string, data []byte, ts time.Time) (*Record, error) {
	if class == "" {
		return nil, fmt.Errorf("input class is required")
	}
	rec := &Record{
		Class:     class,
		Timestamp: ts.UTC(),
		Format:    format,
		Digest:    Digest(data),
		Data:      data,
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInputs)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec.Seq = seq
		value, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), value)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to archive input: %w", err)
	}

	metrics.InputsArchivedTotal.WithLabelValues(string(class)).Inc()
	s.logger.Debug().
		Uint64("seq", rec.Seq).
		Str("class", string(class)).
		Str("digest", rec.Digest).
		Msg("Archived input")
	return rec, nil
}

// Get returns the input archived under seq
func (s *BoltStore) Get(seq uint64) (*Record, error) {
	var rec Record
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketInputs).Get(seqKey(seq))
		if data == nil {
			return fmt.Errorf("%w: %d", ErrNotFound, seq)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the inputs of class, oldest first. An empty class lists
// everything.
func (s *BoltStore) List(class Class) ([]*Record, error) {
	var records []*Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketInputs).ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if class == "" || rec.Class == class {
				records = append(records, &rec)
			}
			return nil
		})
	})
	return records, err
}

// Latest returns the newest input of class
func (s *BoltStore) Latest(class Class) (*Record, error) {
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketInputs).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("corrupt record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			if class == "" || r.Class == class {
				rec = &r
				return nil
			}
		}
		return fmt.Errorf("%w: no %s inputs", ErrNotFound, class)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Prune removes the oldest inputs of class until at most keep remain and
// returns how many were removed. A negative keep removes nothing.
func (s *BoltStore) Prune(class Class, keep int) (int, error) {
	if keep < 0 {
		return 0, nil
	}

	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInputs)
		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var rec Record
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			if class == "" || rec.Class == class {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for len(keys) > keep {
			if err := b.Delete(keys[0]); err != nil {
				return err
			}
			keys = keys[1:]
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to prune %s inputs: %w", class, err)
	}

	if removed > 0 {
		metrics.InputsPrunedTotal.WithLabelValues(string(class)).Add(float64(removed))
		s.logger.Info().Str("class", string(class)).Int("removed", removed).Int("kept", keep).Msg("Pruned archived inputs")
	}
	return removed, nil
}

// Archive stores an input according to the retention of its class and
// prunes the class afterwards. It returns nil when the class is not kept.
func Archive(s Store, class Class, keep int, format string, data []byte, ts time.Time) (*Record, error) {
	if keep == 0 {
		return nil, nil
	}
	rec, err := s.Save(class, format, data, ts)
	if err != nil {
		return nil, err
	}
	if _, err := s.Prune(class, keep); err != nil {
		return rec, err
	}
	return rec, nil
}
