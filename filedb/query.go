package filedb

import (
	"strconv"

	"github.com/metrico/tierflow/utils"
)

// recordValue exposes a record to file queries: key fields, id, file_status
// and per tier {tier}_file and {tier}_tables. Key fields that look like
// integers compare as integers.
func (db *FileDB) recordValue(rec *FileRecord, name string) any {
	switch name {
	case "id":
		return rec.ID
	case "file_status":
		return int64(rec.Status)
	}
	if v, ok := rec.Fields[name]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		return v
	}
	for _, tier := range db.Config.Tiers {
		e := rec.Tier(tier)
		switch name {
		case tier + "_file":
			return e.File
		case tier + "_tables":
			return e.Tables
		case tier + "_col_idx":
			return e.ColIdx
		}
	}
	return nil
}

// Query returns the ids of the records matching the boolean expression, in
// index order. An empty query matches every record.
func (db *FileDB) Query(query string) ([]int64, error) {
	res := make([]int64, 0, len(db.Records))
	if query == "" {
		for _, rec := range db.Records {
			res = append(res, rec.ID)
		}
		return res, nil
	}
	pred, err := utils.CompilePredicate(query)
	if err != nil {
		return nil, err
	}
	var rec *FileRecord
	env := pred.Env(func(name string) any {
		return db.recordValue(rec, name)
	})
	for _, rec = range db.Records {
		ok, err := pred.Run(env)
		if err != nil {
			return nil, err
		}
		if ok {
			res = append(res, rec.ID)
		}
	}
	return res, nil
}
