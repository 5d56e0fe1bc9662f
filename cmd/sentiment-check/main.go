// sentiment-check runs the fusion engine over a piece of text from the
// command line and prints the per-entity breakdown. Useful for tuning the
// lexicon and debugging entity attribution without running the full service.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/politrack/sentinel/internal/models"
	"github.com/politrack/sentinel/internal/sentiment"
)

func main() {
	clustersFile := flag.String("clusters", "clusters.json", "path to the cluster definitions file")
	asJSON := flag.Bool("json", false, "print the raw result as JSON")
	flag.Parse()

	text := strings.Join(flag.Args(), " ")
	if text == "" {
		fmt.Fprintln(os.Stderr, "usage: sentiment-check [-clusters file] [-json] <text>")
		os.Exit(2)
	}

	data, err := os.ReadFile(*clustersFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read clusters file: %v\n", err)
		os.Exit(1)
	}
	var clusters []models.Cluster
	if err := json.Unmarshal(data, &clusters); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse clusters file: %v\n", err)
		os.Exit(1)
	}
	if len(clusters) == 0 {
		fmt.Fprintln(os.Stderr, "clusters file is empty")
		os.Exit(1)
	}

	engine := sentiment.NewEngine(nil)
	result, err := engine.Analyze(context.Background(), sentiment.Input{
		Text:             text,
		PrimaryClusterID: clusters[0].ID,
		Clusters:         clusters,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "analysis failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		return
	}

	fmt.Printf("Text: %s\n\n", text)
	if len(result.EntitySentiments) == 0 {
		fmt.Println("No tracked entities mentioned.")
		return
	}

	entities := make([]string, 0, len(result.EntitySentiments))
	for entity := range result.EntitySentiments {
		entities = append(entities, entity)
	}
	sort.Strings(entities)

	for _, entity := range entities {
		es := result.EntitySentiments[entity]
		fmt.Printf("%-20s %-9s score=%+.3f confidence=%.2f", es.Entity, es.Label, es.Score, es.Confidence)
		if es.Sarcasm {
			fmt.Printf("  sarcasm(%s)", es.SarcasmReason)
		}
		if es.ThreatLevel > 0 {
			fmt.Printf("  threat=%.2f", es.ThreatLevel)
		}
		fmt.Println()
		fmt.Printf("    text=%+.2f emoji=%+.2f hashtag=%+.2f (weights %.2f/%.2f/%.2f)\n",
			es.Components.Text, es.Components.Emoji, es.Components.Hashtag,
			es.Components.TextWeight, es.Components.EmojiWeight, es.Components.HashtagWeight)
	}

	if result.Comparative != nil {
		fmt.Printf("\nComparison: %s (%s)\n", result.Comparative.ComparisonType,
			strings.Join(result.Comparative.Entities, " vs "))
		fmt.Printf("  %s\n", result.Comparative.Summary)
	}
	fmt.Printf("\nPrimary: %s  score=%+.3f label=%s\n", result.PrimaryEntity, result.Score, result.Label)
}
