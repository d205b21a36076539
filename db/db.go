// Package db persists registry snapshots in postgres.
package db

import (
	"context"
	"errors"
	"time"

	"github.com/go-pg/pg/v10"
	"github.com/go-pg/pg/v10/orm"
	"github.com/rangesecurity/oracle/common"
)

type Database struct {
	DB *pg.DB
}

func New(url string) (*Database, error) {
	opt, err := pg.ParseURL(url)
	if err != nil {
		return nil, err
	}
	opt.TLSConfig = nil
	db := &Database{DB: pg.Connect(opt)}
	return db, db.CreateSchema()
}

func (d *Database) Close() error { return d.DB.Close() }

// SaveSnapshot replaces the stored registry state with snap in one transaction.
func (d *Database) SaveSnapshot(ctx context.Context, snap common.Snapshot) error {
	records := recordsFromSnapshot(snap, time.Now().UTC())
	return d.DB.RunInTransaction(ctx, func(tx *pg.Tx) error {
		for _, model := range tables() {
			if _, err := tx.ModelContext(ctx, model).Where("TRUE").Delete(); err != nil {
				return err
			}
		}
		if _, err := tx.ModelContext(ctx, &records.registers).Insert(); err != nil {
			return err
		}
		if len(records.voters) > 0 {
			if _, err := tx.ModelContext(ctx, &records.voters).Insert(); err != nil {
				return err
			}
		}
		if len(records.queries) > 0 {
			if _, err := tx.ModelContext(ctx, &records.queries).Insert(); err != nil {
				return err
			}
		}
		if len(records.votes) > 0 {
			if _, err := tx.ModelContext(ctx, &records.votes).Insert(); err != nil {
				return err
			}
		}
		if len(records.callbacks) > 0 {
			if _, err := tx.ModelContext(ctx, &records.callbacks).Insert(); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadSnapshot returns the stored registry state. found is false when nothing was saved yet.
func (d *Database) LoadSnapshot(ctx context.Context) (snap common.Snapshot, found bool, err error) {
	var records snapshotRecords
	err = d.DB.ModelContext(ctx, &records.registers).Where("id = ?", 1).Select()
	if errors.Is(err, pg.ErrNoRows) {
		return common.Snapshot{}, false, nil
	}
	if err != nil {
		return common.Snapshot{}, false, err
	}
	if err = d.DB.ModelContext(ctx, &records.voters).Order("address ASC").Select(); err != nil {
		return common.Snapshot{}, false, err
	}
	if err = d.DB.ModelContext(ctx, &records.queries).Order("id ASC").Select(); err != nil {
		return common.Snapshot{}, false, err
	}
	if err = d.DB.ModelContext(ctx, &records.votes).Order("query_id ASC", "voter_id ASC").Select(); err != nil {
		return common.Snapshot{}, false, err
	}
	if err = d.DB.ModelContext(ctx, &records.callbacks).Order("query_id ASC").Select(); err != nil {
		return common.Snapshot{}, false, err
	}
	snap, err = records.snapshot()
	return snap, err == nil, err
}

// GetQueriesByStatus returns queries in the given status, oldest first.
func (d *Database) GetQueriesByStatus(ctx context.Context, status common.QueryStatus) (queries []QueryRecord, err error) {
	err = d.DB.ModelContext(ctx, &queries).Where("status = ?", string(status)).Order("id ASC").Select()
	return
}

func (d *Database) GetVotesForQuery(ctx context.Context, queryID uint64) (votes []VoteRecord, err error) {
	err = d.DB.ModelContext(ctx, &votes).Where("query_id = ?", int64(queryID)).Order("voter_id ASC").Select()
	return
}

func (d *Database) CreateSchema() error {
	for _, model := range tables() {
		err := d.DB.Model(model).CreateTable(&orm.CreateTableOptions{
			IfNotExists: true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func tables() []interface{} {
	return []interface{}{
		(*RegistersRecord)(nil),
		(*VoterRecord)(nil),
		(*QueryRecord)(nil),
		(*VoteRecord)(nil),
		(*CallbackRecord)(nil),
	}
}
