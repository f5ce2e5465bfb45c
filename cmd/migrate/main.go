package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"scenesound/internal/models"
	"scenesound/internal/repository/sqlite"
)

// migrate creates or upgrades the track history database, optionally importing
// exported entries (a JSON array of stored music entries) and pruning a device.
func main() {
	dbPath := flag.String("db", "data/music.db", "Database path")
	importFile := flag.String("import", "", "JSON file with an array of track entries to append")
	prune := flag.String("prune", "", "Device id whose history is deleted")
	flag.Parse()

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	fmt.Printf("Database %s is up to date\n", *dbPath)

	repo := sqlite.NewTrackRepository(db)

	if *importFile != "" {
		data, err := os.ReadFile(*importFile)
		if err != nil {
			log.Fatalf("Failed to read %s: %v", *importFile, err)
		}
		var entries []models.StoredMusicEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			log.Fatalf("Failed to parse %s: %v", *importFile, err)
		}

		inserted, err := repo.InsertBatch(entries)
		if err != nil {
			log.Fatalf("Failed to import tracks: %v", err)
		}
		fmt.Printf("Imported %d of %d tracks\n", inserted, len(entries))
	}

	if *prune != "" {
		removed, err := repo.DeleteByDevice(*prune)
		if err != nil {
			log.Fatalf("Failed to prune %s: %v", *prune, err)
		}
		fmt.Printf("Removed %d tracks of %s\n", removed, *prune)
	}

	total, err := repo.Count("")
	if err != nil {
		log.Fatalf("Failed to count tracks: %v", err)
	}
	fmt.Printf("Total tracks: %d\n", total)
}
