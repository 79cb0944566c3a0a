// Command migrate applies the PostgreSQL schema for the records store.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"reservo.org/internal/store/pg"
)

func main() {
	dsn := os.Getenv("RESERVO_PG_DSN")
	if dsn == "" {
		log.Fatal("RESERVO_PG_DSN is required")
	}

	st, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := st.EnsureSchema(ctx); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("schema up to date")
}
