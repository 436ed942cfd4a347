package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/lib/pq"
)

// Small operational probe: checks that the configured DSN is reachable and
// the router's tables exist.
func main() {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		log.Fatal("DATABASE_DSN is required")
	}

	sqlDB, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("Connected to database: %s\n", dbName)

	for _, table := range []string{"deposit_records", "used_nonces"} {
		var exists bool
		err := sqlDB.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil {
			log.Fatalf("Failed to check table %s: %v", table, err)
		}
		if exists {
			fmt.Printf("Table %s: present\n", table)
		} else {
			fmt.Printf("Table %s: MISSING (run the server once to migrate)\n", table)
		}
	}
}
