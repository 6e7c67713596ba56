package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/blevesearch/bleve/v2/search"

	"github.com/RachHavoc/stixmapper/internal/stixcore"
)

func main() {
	indexPath := flag.String("index", "abilities.bleve", "path to the ability index")
	abilityPath := flag.String("abilities", "", "optional ability file (JSON or YAML) to index before searching")
	technique := flag.String("technique", "", "search by exact ATT&CK technique ID instead of free text")
	size := flag.Int("size", 5, "maximum number of results")
	flag.Parse()

	if *technique == "" && flag.NArg() < 1 {
		log.Fatalf("Usage: search [-index path] [-abilities file] [-technique T####] <query>")
	}

	index, err := stixcore.OpenAbilityIndex(*indexPath)
	if err != nil {
		log.Fatalf("Failed to open index: %v", err)
	}
	defer index.Close()

	if *abilityPath != "" {
		abilities, err := stixcore.LoadAbilityFile(*abilityPath)
		if err != nil {
			log.Fatalf("Failed to load abilities: %v", err)
		}
		indexed, err := index.IndexAbilities(abilities)
		if err != nil {
			log.Fatalf("Failed to index abilities: %v", err)
		}
		log.Printf("Indexed %d abilities from %s", indexed, *abilityPath)
	}

	var (
		total uint64
		hits  search.DocumentMatchCollection
	)
	if *technique != "" {
		results, err := index.SearchByTechnique(*technique, *size)
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		total, hits = results.Total, results.Hits
	} else {
		results, err := index.Search(flag.Arg(0), *size)
		if err != nil {
			log.Fatalf("Search failed: %v", err)
		}
		total, hits = results.Total, results.Hits
	}

	fmt.Printf("\n--- Search Results (%d hits) ---\n", total)
	for i, hit := range hits {
		fmt.Printf("%d. %s (score: %.2f)\n", i+1, hit.ID, hit.Score)
		fmt.Printf("   Name: %v\n", hit.Fields["name"])
		fmt.Printf("   Technique: %v  Tactic: %v\n", hit.Fields["attack_id"], hit.Fields["tactic"])
		fmt.Println("-------------------------------------")
	}
}
