package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/RachHavoc/stixmapper/internal/stixcore"
)

func main() {
	bundlePath := flag.String("bundle", "", "path to a STIX 2.x bundle JSON file")
	abilityPath := flag.String("abilities", "", "path to an ability file (JSON or YAML)")
	fallback := flag.Bool("fallback", true, "fall back to the parent technique when a sub-technique has no matches")
	filterTactic := flag.Bool("filter-tactic", false, "only keep abilities whose tactic matches the attack-pattern's kill chain phases")
	xlsxPath := flag.String("xlsx", "", "optional path to export the report as a spreadsheet")
	jsonOut := flag.Bool("json", false, "print the raw report JSON instead of a summary")
	flag.Parse()

	if *bundlePath == "" || *abilityPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*bundlePath)
	if err != nil {
		log.Fatalf("Failed to read bundle: %v", err)
	}
	bundle, err := stixcore.DecodeBundle(data)
	if err != nil {
		log.Fatalf("Failed to decode bundle: %v", err)
	}

	abilities, err := stixcore.LoadAbilityFile(*abilityPath)
	if err != nil {
		log.Fatalf("Failed to load abilities: %v", err)
	}
	log.Printf("Loaded %d abilities from %s", len(abilities), *abilityPath)

	matcher := stixcore.NewMatcher(stixcore.NewStaticStore(abilities))
	report, err := matcher.MatchBundle(context.Background(), bundle, stixcore.Options{
		FallbackToParent: *fallback,
		FilterByTactic:   *filterTactic,
	})
	if err != nil {
		log.Fatalf("Matching failed: %v", err)
	}

	if *jsonOut {
		out, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal report: %v", err)
		}
		fmt.Println(string(out))
	} else {
		printReport(report)
	}

	if *xlsxPath != "" {
		if err := stixcore.WriteReportXLSX(report, *xlsxPath); err != nil {
			log.Fatalf("Failed to export spreadsheet: %v", err)
		}
		log.Printf("Report exported to %s", *xlsxPath)
	}
}

func printReport(report *stixcore.MatchReport) {
	header := color.New(color.FgCyan, color.Bold)
	matched := color.New(color.FgGreen)
	missed := color.New(color.FgYellow)
	viaParent := color.New(color.FgMagenta)

	header.Printf("Attack patterns: %d, with technique: %d, abilities matched: %d\n",
		report.Stats.AttackPatterns, report.Stats.WithTechnique, report.Stats.AbilitiesTotal)

	for _, mapping := range report.Mappings {
		tid := "-"
		if mapping.TechniqueID != nil {
			tid = *mapping.TechniqueID
		}
		fmt.Printf("\n%s (%s)  tactics: %s\n", mapping.Name, tid, strings.Join(mapping.Tactics, ", "))

		if mapping.ParentTechniqueID != nil {
			viaParent.Printf("  matched via parent %s\n", *mapping.ParentTechniqueID)
		}
		if len(mapping.Abilities) == 0 {
			missed.Println("  no matching abilities")
			continue
		}
		for _, ab := range mapping.Abilities {
			name, id, tactic := "-", "-", "-"
			if ab.Name != nil {
				name = *ab.Name
			}
			if ab.AbilityID != nil {
				id = *ab.AbilityID
			}
			if ab.Tactic != nil {
				tactic = *ab.Tactic
			}
			matched.Printf("  %s  %s  [%s]\n", id, name, tactic)
		}
	}

	if len(report.Unmatched) > 0 {
		missed.Printf("\nUnmatched techniques: %s\n", strings.Join(report.Unmatched, ", "))
	}
}
