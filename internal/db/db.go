package db

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"go.etcd.io/bbolt"

	"qbmerge/internal/merger"
)

const (
	ReportsBucket = "reports"
)

// ReportDB is the ledger of finished repair runs, keyed by run ID.
type ReportDB struct {
	db         *bbolt.DB
	mu         sync.RWMutex
	serializer Serializer
}

type Config struct {
	Path       string
	FileMode   os.FileMode
	Options    *bbolt.Options
	Serializer Serializer
}

func NewReportDB(cfg Config) (*ReportDB, error) {
	if cfg.Serializer == nil {
		cfg.Serializer = &GobSerializer{}
	}

	if cfg.FileMode == 0 {
		cfg.FileMode = 0666
	}

	db, err := bbolt.Open(cfg.Path, cfg.FileMode, cfg.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", cfg.Path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ReportsBucket))
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &ReportDB{
		db:         db,
		serializer: cfg.Serializer,
	}, nil
}

func (rdb *ReportDB) Close() error {
	if rdb.db == nil {
		return ErrNilDB
	}
	return rdb.db.Close()
}

// SaveReport stores r under its run ID, replacing an earlier copy.
func (rdb *ReportDB) SaveReport(r *merger.Report) error {
	if r == nil {
		return ErrNilReport
	}
	if r.RunID == "" {
		return fmt.Errorf("%w: empty run id", ErrNilReport)
	}

	data, err := rdb.serializer.Serialize(r)
	if err != nil {
		return fmt.Errorf("failed to serialize report %s: %w", r.RunID, err)
	}

	rdb.mu.Lock()
	defer rdb.mu.Unlock()

	return rdb.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(ReportsBucket))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(r.RunID), data)
	})
}

func (rdb *ReportDB) GetReport(runID string) (*merger.Report, error) {
	var r merger.Report

	rdb.mu.RLock()
	defer rdb.mu.RUnlock()

	err := rdb.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ReportsBucket))
		if bucket == nil {
			return ErrBucketNotFound
		}

		data := bucket.Get([]byte(runID))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrReportNotFound, runID)
		}

		return rdb.serializer.Deserialize(data, &r)
	})

	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListReports returns stored reports, newest first. A positive limit caps
// the number returned.
func (rdb *ReportDB) ListReports(limit int) ([]*merger.Report, error) {
	var reports []*merger.Report

	rdb.mu.RLock()
	defer rdb.mu.RUnlock()

	err := rdb.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ReportsBucket))
		if bucket == nil {
			return nil
		}

		return bucket.ForEach(func(k, v []byte) error {
			var r merger.Report
			if err := rdb.serializer.Deserialize(v, &r); err != nil {
				return fmt.Errorf("failed to decode report %s: %w", k, err)
			}
			reports = append(reports, &r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].StartedAt.After(reports[j].StartedAt)
	})
	if limit > 0 && len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

func (rdb *ReportDB) DeleteReport(runID string) error {
	rdb.mu.Lock()
	defer rdb.mu.Unlock()

	return rdb.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(ReportsBucket))
		if bucket == nil {
			return nil
		}
		return bucket.Delete([]byte(runID))
	})
}
