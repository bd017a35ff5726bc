package tilesink

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestWriter_New(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.sqlite")

	metadata := Metadata{
		Name:        "Test Archive",
		Format:      "png",
		Attribution: "Test",
		Description: "Test description",
		Type:        "overlay",
		Version:     "1.0",
	}

	w, err := New(dbPath, metadata)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer w.Close()

	// Verify database file exists
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("Database file was not created")
	}

	// Verify schema exists
	var count int
	err = w.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='entries'").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query schema: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected entries table to exist, got count=%d", count)
	}

	// Verify metadata was inserted
	err = w.db.QueryRow("SELECT COUNT(*) FROM metadata").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query metadata: %v", err)
	}
	if count == 0 {
		t.Error("Expected metadata to be inserted")
	}
}

func TestWriter_WriteEntry(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.sqlite")

	metadata := Metadata{
		Name:   "Test",
		Format: "png",
	}

	w, err := New(dbPath, metadata)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer w.Close()

	// Create fake PNG data
	pngData := []byte("fake png data")

	// Write an entry
	err = w.WriteEntry("tile-4317-2692", pngData)
	if err != nil {
		t.Fatalf("Failed to write entry: %v", err)
	}

	// Flush to ensure it's written
	err = w.Flush()
	if err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}

	// Verify entry was written
	var count int
	err = w.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query entries: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 entry, got %d", count)
	}

	var entryData []byte
	err = w.db.QueryRow("SELECT entry_data FROM entries WHERE workspace_key=?", "tile-4317-2692").Scan(&entryData)
	if err != nil {
		t.Fatalf("Failed to read entry: %v", err)
	}
	if len(entryData) == 0 {
		t.Error("Expected entry data to be stored")
	}
}

func TestWriter_BatchFlush(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.sqlite")

	metadata := Metadata{
		Name:   "Test",
		Format: "png",
	}

	w, err := New(dbPath, metadata)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer w.Close()

	// Write multiple entries
	pngData := []byte("fake png data")
	for i := 0; i < 150; i++ {
		err = w.WriteEntry(fmt.Sprintf("workspace-%03d", i), pngData)
		if err != nil {
			t.Fatalf("Failed to write entry %d: %v", i, err)
		}
	}

	// Close should flush remaining entries
	err = w.Close()
	if err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// Re-open and verify all entries were written
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query entries: %v", err)
	}
	if count != 150 {
		t.Errorf("Expected 150 entries, got %d", count)
	}
}

func TestWriter_ReplaceExisting(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.sqlite")

	metadata := Metadata{
		Name:   "Test",
		Format: "png",
	}

	w, err := New(dbPath, metadata)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer w.Close()

	// Write an entry
	pngData1 := []byte("first version")
	err = w.WriteEntry("tile-100-200", pngData1)
	if err != nil {
		t.Fatalf("Failed to write first entry: %v", err)
	}
	w.Flush()

	// Write the same key again with different data
	pngData2 := []byte("second version")
	err = w.WriteEntry("tile-100-200", pngData2)
	if err != nil {
		t.Fatalf("Failed to write second entry: %v", err)
	}
	w.Flush()

	// Verify only one entry exists (was replaced)
	var count int
	err = w.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count)
	if err != nil {
		t.Fatalf("Failed to query entries: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 entry (replaced), got %d", count)
	}
}
