// intel-inspect dumps a prodintel database for debugging without cgo: it
// uses the pure-Go sqlite driver, so it builds and runs anywhere the main
// binary's data needs a look.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := "data/prodintel.db"
	limit := 10
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}
	if len(os.Args) > 2 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			limit = n
		}
	}

	if err := inspect(dbPath, limit); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func inspect(dbPath string, limit int) error {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", dbPath, err)
	}
	defer db.Close()

	fmt.Printf("=== %s ===\n\n", dbPath)

	rows, err := db.Query(`
		SELECT id, product_url, url_hash, compilation_version, status,
			reference_count, quality_score,
			intelligence_embedding IS NOT NULL,
			compiled_at, last_verified_at
		FROM compiled_intelligence
		ORDER BY last_accessed_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return fmt.Errorf("query intelligence: %w", err)
	}
	defer rows.Close()

	fmt.Println("compiled_intelligence:")
	count := 0
	for rows.Next() {
		var id, version, refs int64
		var url, hash, status, compiledAt string
		var quality float64
		var embedded bool
		var verifiedAt sql.NullString
		if err := rows.Scan(&id, &url, &hash, &version, &status, &refs,
			&quality, &embedded, &compiledAt, &verifiedAt); err != nil {
			return err
		}
		verified := "never"
		if verifiedAt.Valid {
			verified = verifiedAt.String
		}
		fmt.Printf("  #%d v%d %s refs=%d q=%.2f embedded=%v\n", id, version, status, refs, quality, embedded)
		fmt.Printf("     %s\n     hash=%s compiled=%s verified=%s\n", url, hash[:16]+"…", compiledAt, verified)
		count++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if count == 0 {
		fmt.Println("  (empty)")
	}

	snipRows, err := db.Query(`
		SELECT s.product_intelligence_id, COUNT(*), COUNT(s.embedding), MIN(s.created_at)
		FROM knowledge_snippets s
		GROUP BY s.product_intelligence_id
		ORDER BY s.product_intelligence_id
		LIMIT ?`, limit)
	if err != nil {
		return fmt.Errorf("query snippets: %w", err)
	}
	defer snipRows.Close()

	fmt.Println("\nknowledge_snippets:")
	count = 0
	for snipRows.Next() {
		var owner, total, embedded int64
		var oldest string
		if err := snipRows.Scan(&owner, &total, &embedded, &oldest); err != nil {
			return err
		}
		fmt.Printf("  intelligence %d: %d snippets (%d embedded), oldest %s\n", owner, total, embedded, oldest)
		count++
	}
	if count == 0 {
		fmt.Println("  (empty)")
	}

	var dims string
	if err := db.QueryRow("SELECT value FROM store_meta WHERE key = 'vector_dims'").Scan(&dims); err == nil {
		fmt.Printf("\nvector dims: %s\n", dims)
	}
	fmt.Println(strings.Repeat("─", 40))
	return snipRows.Err()
}
