// Command migrate applies the gorm schema to DB_DSN.
package main

import (
	"log"

	"github.com/NateGarrisonREI1/admin-console-sub007/internal/config"
	"github.com/NateGarrisonREI1/admin-console-sub007/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.Printf("schema up to date (%s)", cfg.DB.Driver)
}
