package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"macroschedd/internal/schedule"
	logx "macroschedd/pkg/logx"
)

var (
	bucketSchedules = []byte("schedules")
	bucketMeta      = []byte("meta")

	keyNextID = []byte("next_id")
)

type boltStore struct {
	db  *bbolt.DB
	log logx.Logger
}

func openBolt(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("bolt path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(cfg.Path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	st := &boltStore{db: db, log: log}
	if err := st.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *boltStore) initSchema() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketSchedules, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *boltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *boltStore) Load(ctx context.Context) (*State, error) {
	_ = ctx
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	st := EmptyState()
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketSchedules)
		if b != nil {
			if err := b.ForEach(func(k, v []byte) error {
				var rec schedule.Schedule
				if err := json.Unmarshal(v, &rec); err != nil {
					s.log.Warn("skipping unreadable schedule record", logx.String("key", string(k)), logx.Err(err))
					return nil
				}
				st.Schedules[string(k)] = &rec
				return nil
			}); err != nil {
				return err
			}
		}
		if meta := tx.Bucket(bucketMeta); meta != nil {
			if raw := meta.Get(keyNextID); raw != nil {
				n, err := strconv.ParseInt(string(raw), 10, 64)
				if err == nil {
					st.NextID = n
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st.normalize(), nil
}

func (s *boltStore) Save(ctx context.Context, st *State) error {
	_ = ctx
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	st = st.normalize()

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketSchedules); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucketIfNotExists(bucketSchedules)
		if err != nil {
			return err
		}
		for key, rec := range st.Schedules {
			raw, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(key), raw); err != nil {
				return err
			}
		}
		meta, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		return meta.Put(keyNextID, []byte(strconv.FormatInt(st.NextID, 10)))
	})
}
