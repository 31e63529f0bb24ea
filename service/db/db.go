package db

import (
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb/v2" // load duckdb driver
)

// ConnectDuckDB opens the DuckDB database holding the file index. An empty
// path opens an in-memory database.
func ConnectDuckDB(filePath string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to DuckDB: %w", err)
	}

	return db, nil
}
