package config

import (
	"database/sql"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"
)

// ResolveCollectionName picks the vector collection name to hand the
// sidecar. Chroma pins a collection to the dimensionality of its first
// insert, so reusing a collection after changing embedding models breaks
// every write. When the existing collection's dimension differs from
// dims, the name is suffixed with the new dimension and the old data
// stays untouched under the old name.
func ResolveCollectionName(persistDir, baseName string, dims int) string {
	existing, ok := collectionDimension(persistDir, baseName)
	if ok && existing != dims {
		return baseName + "_" + strconv.Itoa(dims)
	}
	return baseName
}

// collectionDimension reads a collection's dimension straight out of
// Chroma's sqlite store. Any failure means "unknown" — the base name is
// used as-is in that case.
func collectionDimension(persistDir, name string) (int, bool) {
	dbPath := filepath.Join(persistDir, "chroma.sqlite3")
	if _, err := os.Stat(dbPath); err != nil {
		return 0, false
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return 0, false
	}
	defer db.Close()

	var dim int
	err = db.QueryRow(`SELECT dimension FROM collections WHERE name = ?`, name).Scan(&dim)
	if err != nil {
		return 0, false
	}
	return dim, true
}
