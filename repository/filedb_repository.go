package repository

import (
	"database/sql"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/metrico/tierflow/config"
	"github.com/metrico/tierflow/filedb"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var fileDBSchema = []string{`
	CREATE TABLE IF NOT EXISTS filedb_files (
		id BIGINT PRIMARY KEY,
		fields VARCHAR,
		file_status UINTEGER
	);`, `
	CREATE TABLE IF NOT EXISTS filedb_tiers (
		file_id BIGINT,
		tier VARCHAR,
		file VARCHAR,
		tables VARCHAR[],
		col_idx INTEGER[],
		PRIMARY KEY (file_id, tier)
	);`, `
	CREATE TABLE IF NOT EXISTS filedb_columns (
		idx INTEGER PRIMARY KEY,
		columns VARCHAR[]
	);`,
}

func CreateFileDBTables(db *sql.DB) error {
	for _, query := range fileDBSchema {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to create filedb tables in DuckDB: %w", err)
		}
	}
	return nil
}

// SaveFileDB replaces the persisted index with fdb.
func SaveFileDB(db *sql.DB, fdb *filedb.FileDB) error {
	if err := CreateFileDBTables(db); err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"filedb_files", "filedb_tiers", "filedb_columns"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for i, cols := range fdb.Columns {
		colsJSON, err := json.Marshal(cols)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO filedb_columns (idx, columns) SELECT ?, ?::JSON::VARCHAR[]`,
			i, string(colsJSON))
		if err != nil {
			return fmt.Errorf("failed to insert column set %d: %w", i, err)
		}
	}

	for _, rec := range fdb.Records {
		fieldsJSON, err := json.Marshal(rec.Fields)
		if err != nil {
			return err
		}
		_, err = tx.Exec(`INSERT INTO filedb_files (id, fields, file_status) VALUES (?, ?, ?)`,
			rec.ID, string(fieldsJSON), rec.Status)
		if err != nil {
			return fmt.Errorf("failed to insert file %d: %w", rec.ID, err)
		}
		for _, tier := range fdb.Tiers() {
			e := rec.Tier(tier)
			tablesJSON, err := json.Marshal(e.Tables)
			if err != nil {
				return err
			}
			colIdxJSON, err := json.Marshal(e.ColIdx)
			if err != nil {
				return err
			}
			_, err = tx.Exec(`
INSERT INTO filedb_tiers (file_id, tier, file, tables, col_idx)
SELECT ?, ?, ?, ?::JSON::VARCHAR[], ?::JSON::INTEGER[]`,
				rec.ID, tier, e.File, string(tablesJSON), string(colIdxJSON))
			if err != nil {
				return fmt.Errorf("failed to insert file %d tier %s: %w", rec.ID, tier, err)
			}
		}
	}
	return tx.Commit()
}

// LoadFileDB reads an index written by SaveFileDB.
func LoadFileDB(db *sql.DB, conf *config.FileDBConfig) (*filedb.FileDB, error) {
	var columns [][]string
	rows, err := db.Query(`SELECT idx, coalesce(to_json(columns)::VARCHAR, '[]') FROM filedb_columns ORDER BY idx`)
	if err != nil {
		return nil, fmt.Errorf("failed to query column sets: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var idx int
		var colsJSON string
		if err := rows.Scan(&idx, &colsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan column set: %w", err)
		}
		if idx != len(columns) {
			return nil, fmt.Errorf("column set %d is missing", len(columns))
		}
		var cols []string
		if err := json.Unmarshal([]byte(colsJSON), &cols); err != nil {
			return nil, err
		}
		columns = append(columns, cols)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var records []*filedb.FileRecord
	fileRows, err := db.Query(`SELECT id, coalesce(fields, '{}'), file_status FROM filedb_files ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer fileRows.Close()
	for fileRows.Next() {
		rec := &filedb.FileRecord{Tiers: map[string]*filedb.TierEntry{}}
		var fieldsJSON string
		if err := fileRows.Scan(&rec.ID, &fieldsJSON, &rec.Status); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		if err := json.Unmarshal([]byte(fieldsJSON), &rec.Fields); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := fileRows.Err(); err != nil {
		return nil, err
	}

	tierRows, err := db.Query(`
SELECT file_id, tier, file,
	coalesce(to_json(tables)::VARCHAR, '[]'), coalesce(to_json(col_idx)::VARCHAR, '[]')
FROM filedb_tiers ORDER BY file_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiers: %w", err)
	}
	defer tierRows.Close()
	for tierRows.Next() {
		var (
			fileID                int64
			tier, tablesJSON, idx string
			e                     filedb.TierEntry
		)
		if err := tierRows.Scan(&fileID, &tier, &e.File, &tablesJSON, &idx); err != nil {
			return nil, fmt.Errorf("failed to scan tier: %w", err)
		}
		if fileID < 0 || fileID >= int64(len(records)) {
			return nil, fmt.Errorf("tier %s refers to unknown file %d", tier, fileID)
		}
		if err := json.Unmarshal([]byte(tablesJSON), &e.Tables); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(idx), &e.ColIdx); err != nil {
			return nil, err
		}
		records[fileID].Tiers[tier] = &e
	}
	if err := tierRows.Err(); err != nil {
		return nil, err
	}
	return filedb.Restore(conf, records, columns)
}
