package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/marshnicholas123/nlq-demo/internal/application/retrieval"
	domain "github.com/marshnicholas123/nlq-demo/internal/domain/retrieval"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/embedding"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/index"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (defaults to NLQ_CONFIG_FILE)")
	collection := flag.String("collection", "business_rules", "collection to query: schema, business_rules, sample_data")
	topK := flag.Int("k", 5, "number of results")
	semantic := flag.Bool("semantic", false, "also run semantic and hybrid retrieval (calls the embedding API)")
	flag.Usage = func() {
		fmt.Println("Usage:")
		fmt.Println("  diagnose_index [flags]           - print collection statistics")
		fmt.Println("  diagnose_index [flags] <query>   - also run retrieval against one collection")
		fmt.Println("")
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	loader := index.NewLoader(&cfg.Index, &cfg.Embedding)
	bundle, err := loader.Load()
	if err != nil {
		log.Fatalf("failed to load indices from %s: %v", cfg.Index.Dir, err)
	}

	fmt.Printf("Index directory: %s\n", cfg.Index.Dir)
	fmt.Println(strings.Repeat("=", 80))
	for _, coll := range []*domain.Collection{bundle.Schema, bundle.BusinessRules, bundle.SampleData} {
		printCollection(coll)
	}

	query := strings.Join(flag.Args(), " ")
	if query == "" {
		return
	}

	var embedder domain.Embedder
	if *semantic {
		embedder = embedding.NewClient(&cfg.Embedding)
	}
	catalog := retrieval.NewCatalog(&retrieval.Sources{
		Schema:        bundle.Schema,
		BusinessRules: bundle.BusinessRules,
		SampleData:    bundle.SampleData,
	}, embedder, &cfg.Retrieval)

	var engine *retrieval.Engine
	switch *collection {
	case index.CollectionSchema:
		engine = catalog.Schema.Engine()
	case index.CollectionBusinessRules:
		engine = catalog.Rules
	case index.CollectionSampleData:
		engine = catalog.Samples.Engine()
	default:
		fmt.Printf("unknown collection %q\n", *collection)
		os.Exit(1)
	}

	fmt.Printf("\nQuery: %s\n", query)
	fmt.Println(strings.Repeat("=", 80))
	printResults("keyword", engine.RetrieveKeyword(query, *topK))

	if !*semantic {
		return
	}

	ctx := context.Background()
	results, err := engine.RetrieveSemantic(ctx, query, *topK)
	if err != nil {
		fmt.Printf("\n[semantic] unavailable: %v\n", err)
	} else {
		printResults("semantic", results)
	}

	hybrid := engine.RetrieveHybrid(ctx, query, retrieval.HybridOptions{TopK: *topK})
	if hybrid.Degraded {
		fmt.Printf("\n[hybrid] degraded: %s\n", hybrid.Warning)
	}
	printResults("hybrid", hybrid.Results)

	fmt.Println("\nFormatted context:")
	fmt.Println(retrieval.FormatContext(hybrid.Results))
}

// printCollection 打印集合统计
func printCollection(coll *domain.Collection) {
	tables := make(map[string]int)
	for _, d := range coll.Documents {
		if d.Table != "" {
			tables[d.Table]++
		}
	}

	fmt.Printf("%s\n", coll.Name)
	fmt.Printf("  documents:  %d\n", len(coll.Documents))
	fmt.Printf("  tokenized:  %t\n", len(coll.Tokens) == len(coll.Documents))
	if coll.HasEmbeddings() {
		fmt.Printf("  embeddings: %d x %d (%s)\n", len(coll.Embeddings), coll.Dimension, coll.Model)
	} else {
		fmt.Println("  embeddings: none (keyword only)")
	}
	for table, n := range tables {
		fmt.Printf("  table %-40s %d\n", table, n)
	}
	fmt.Println()
}

// printResults 打印检索结果
func printResults(label string, results []domain.Result) {
	fmt.Printf("\n[%s] %d results\n", label, len(results))
	for i, r := range results {
		content := strings.ReplaceAll(r.Content, "\n", " ")
		if runes := []rune(content); len(runes) > 100 {
			content = string(runes[:100]) + "..."
		}
		fmt.Printf("  %d. %.4f  %-20s %s\n", i+1, r.Score, r.Source, content)
	}
}
