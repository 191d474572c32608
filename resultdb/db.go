// Confessor
// Copyright (c) 2016, 2025, DCSO GmbH

// Package resultdb persists finished parser reports keyed by sample hash,
// allowing idempotent re-runs to skip samples parsed recently.
package resultdb

import (
	"encoding/json"
	"errors"
	"path/filepath"

	bolt "github.com/etcd-io/bbolt"
	log "github.com/sirupsen/logrus"
)

const (
	bucketName = "REPORTS"

	// DatabaseName is the file name of the database file.
	DatabaseName = "reports.db"
)

var reportsDB *bolt.DB

// InitDB is used to initialize the bolt database on startup.
func InitDB(dataPath string) error {
	var err error
	// Try to open the database file. If not present it will be created.
	reportsDB, err = bolt.Open(filepath.Join(dataPath, DatabaseName), 0600, nil)
	if err != nil {
		return err
	}
	log.Debug("Database initialized:", reportsDB.Path())
	return nil
}

// CloseDB should be called before the program terminates.
func CloseDB() error {
	return reportsDB.Close()
}

// entryKey builds the bucket key for a (sample, parser) pair. Keying on
// both keeps reports from different parsers on the same sample distinct.
func entryKey(sha256, parser string) []byte {
	return []byte(sha256 + ":" + parser)
}

// CreateReportEntry stores the report for a processed sample.
func CreateReportEntry(re ReportEntry) error {
	encoded, err := json.Marshal(re)
	if err != nil {
		return err
	}

	err = reportsDB.Update(func(tx *bolt.Tx) error {
		var bucket *bolt.Bucket
		bucket, err = tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		err = bucket.Put(entryKey(re.Hashes.Sha256, re.Source+":"+re.Parser), encoded)
		return err
	})
	if err == nil {
		log.Debug("Stored report entry in database:", re.Hashes.Sha256)
	}
	return err
}

// GetReportEntry queries the database for a given sha256 hash and parser
// name to see if there is already a report for the pair.
func GetReportEntry(sha256, parser string) (ReportEntry, error) {
	var data []byte
	re := ReportEntry{}

	err := reportsDB.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return errors.New("missing bucket")
		}
		// the value is only valid within the transaction
		if v := bucket.Get(entryKey(sha256, parser)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || len(data) == 0 {
		return re, err
	}

	err = json.Unmarshal(data, &re)
	return re, err
}
