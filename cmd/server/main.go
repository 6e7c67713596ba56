package main

import (
	"log"
	"net/http"
	"os"

	"github.com/RachHavoc/stixmapper/internal/stixapi"
	"github.com/RachHavoc/stixmapper/internal/stixcore"
)

func main() {
	log.Println("Starting stixmapper API server")

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8888"
		log.Printf("HTTP_ADDR environment variable not set, using default: %s", addr)
	}

	abilityFile := os.Getenv("ABILITY_FILE")
	dbPath := os.Getenv("DB_PATH")
	indexPath := os.Getenv("INDEX_PATH")

	var abilities []stixcore.Ability
	if abilityFile != "" {
		var err error
		abilities, err = stixcore.LoadAbilityFile(abilityFile)
		if err != nil {
			log.Fatalf("Failed to load abilities from %s: %v", abilityFile, err)
		}
		log.Printf("Loaded %d abilities from %s", len(abilities), abilityFile)
	}

	var store stixcore.AbilityStore
	if dbPath != "" {
		boltStore, err := stixcore.NewBoltStore(dbPath)
		if err != nil {
			log.Fatalf("Failed to open ability store at %s: %v", dbPath, err)
		}
		defer boltStore.Close()
		if len(abilities) > 0 {
			if err := boltStore.PutAll(abilities); err != nil {
				log.Fatalf("Failed to seed ability store: %v", err)
			}
			log.Printf("Seeded ability store with %d abilities", len(abilities))
		}
		store = boltStore
	} else {
		if abilityFile == "" {
			log.Fatal("Set ABILITY_FILE or DB_PATH so the server has abilities to match against")
		}
		store = stixcore.NewStaticStore(abilities)
	}

	var index *stixcore.AbilityIndex
	if indexPath != "" {
		var err error
		index, err = stixcore.OpenAbilityIndex(indexPath)
		if err != nil {
			log.Fatalf("Failed to open ability index at %s: %v", indexPath, err)
		}
		defer index.Close()
		if len(abilities) > 0 {
			indexed, err := index.IndexAbilities(abilities)
			if err != nil {
				log.Fatalf("Failed to index abilities: %v", err)
			}
			log.Printf("Indexed %d abilities", indexed)
		}
	}

	server := stixapi.NewServer(store, index)
	log.Printf("Listening on %s", addr)
	if err := http.ListenAndServe(addr, server.Handler()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
