// Command wipeprofiles empties the profile database between seasons. Deletes
// run in batches so a live server sharing the file never hits a long lock.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"tankwar/internal/config"
	"tankwar/internal/profile"
)

const wipeBatch = 100

func main() {
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	}

	storeCfg := config.StoreFromEnv()
	if len(os.Args) > 1 {
		storeCfg.ProfileDB = os.Args[1]
	}

	store, err := profile.Open(storeCfg.ProfileDB)
	if err != nil {
		log.Printf("💥 Cannot open %s: %v", storeCfg.ProfileDB, err)
		os.Exit(1)
	}
	defer store.Close()

	before, err := store.Count()
	if err != nil {
		log.Printf("💥 Cannot count profiles: %v", err)
		os.Exit(1)
	}

	deleted, err := store.WipeAll(wipeBatch)
	if err != nil {
		log.Printf("💥 Wipe stopped after %d of %d profiles: %v", deleted, before, err)
		os.Exit(1)
	}

	log.Printf("🧹 Wiped %d profiles from %s", deleted, storeCfg.ProfileDB)
}
