package tilesink

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
)

// Reader reads entries from a sqlite-backed archive.
type Reader struct {
	db   *sql.DB
	path string
}

// OpenReader opens an archive for reading.
func OpenReader(path string) (*Reader, error) {
	// Open in read-only mode with immutable flag
	db, err := sql.Open("sqlite", path+"?mode=ro&immutable=1")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify schema exists
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='entries'").Scan(&count)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify schema: %w", err)
	}
	if count == 0 {
		db.Close()
		return nil, fmt.Errorf("database does not contain entries table")
	}

	return &Reader{
		db:   db,
		path: path,
	}, nil
}

// ReadEntry reads a workspace's composed output from the archive by its
// workspace name and returns ungzipped PNG data.
func (r *Reader) ReadEntry(key string) ([]byte, error) {
	var compressedData []byte
	err := r.db.QueryRow(
		"SELECT entry_data FROM entries WHERE workspace_key=?",
		key,
	).Scan(&compressedData)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("entry not found: %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entry: %w", err)
	}

	// Decompress gzip data
	uncompressed, err := gzipDecompress(compressedData)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress entry: %w", err)
	}

	return uncompressed, nil
}

// Keys returns every workspace name stored in the archive.
func (r *Reader) Keys() ([]string, error) {
	rows, err := r.db.Query("SELECT workspace_key FROM entries")
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan entry key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entries: %w", err)
	}
	return keys, nil
}

// Metadata reads metadata from the database.
func (r *Reader) Metadata() (Metadata, error) {
	rows, err := r.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	meta := Metadata{}
	metaMap := make(map[string]string)

	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Metadata{}, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		metaMap[name] = value
	}

	if err := rows.Err(); err != nil {
		return Metadata{}, fmt.Errorf("error iterating metadata: %w", err)
	}

	meta.Name = metaMap["name"]
	meta.Format = metaMap["format"]
	meta.Attribution = metaMap["attribution"]
	meta.Description = metaMap["description"]
	meta.Type = metaMap["type"]
	meta.Version = metaMap["version"]

	return meta, nil
}

// Close closes the database connection.
func (r *Reader) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// gzipDecompress decompresses gzip data.
func gzipDecompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	uncompressed, err := io.ReadAll(gr)
	if err != nil {
		return nil, err
	}

	return uncompressed, nil
}
