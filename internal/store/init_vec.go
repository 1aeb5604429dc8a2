//go:build sqlite_vec && cgo

package store

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver.
	// The brute-force cosine scan in SearchSnippets works without it; with
	// the extension loaded, large snippet sets can be migrated to vec0
	// virtual tables for ANN search.
	vec.Auto()
}
