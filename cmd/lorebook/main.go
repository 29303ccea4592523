// Command lorebook maintains a narrative knowledge base alongside a novel
// manuscript: it processes one chapter at a time, updating the JSON state
// document and the relational index, and writes a per-chapter report.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/scrypster/lorebook/internal/config"
	"github.com/scrypster/lorebook/internal/embedding"
	"github.com/scrypster/lorebook/internal/engine"
	"github.com/scrypster/lorebook/internal/index"
	"github.com/scrypster/lorebook/internal/statestore"
	"github.com/scrypster/lorebook/pkg/types"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "lorebook",
		Short: "Narrative knowledge-base maintainer",
		Long: `Lorebook tracks the entities, states, and relationships of a long-form
narrative. Each run processes a single chapter: extraction proposes facts,
uncertain mentions are resolved by confidence, confirmed facts merge into the
JSON state document, and a relational index plus a run report are written.

Configuration comes from LOREBOOK_* environment variables; see the README.`,
		Version: version,
	}

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(similarCmd())
	rootCmd.AddCommand(schemaCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the knowledge base in the current project",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			if err := statestore.Init(cfg.StatePath()); err != nil {
				return err
			}

			writer, err := index.NewWriter(cfg.Index.DBPath)
			if err != nil {
				return err
			}
			defer writer.Close()

			fmt.Printf("Initialized knowledge base in %s\n", cfg.Project.StorageDir)
			fmt.Printf("  state:  %s\n", cfg.StatePath())
			fmt.Printf("  index:  %s\n", cfg.Index.DBPath)
			fmt.Printf("  rules:  %s (optional, create to add recognizer rules)\n", cfg.Extraction.RulesPath)
			return nil
		},
	}
}

func processCmd() *cobra.Command {
	var chapter int

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process a single chapter",
		Long: `Process one chapter through the full pipeline. The chapter file is
expected at {root}/正文/第{NNNN}章.md. Reprocessing a chapter is safe: state
history, relationships, and index rows are not duplicated.

Example:
  lorebook process --chapter 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			logger := log.New(os.Stderr, "[lorebook] ", log.LstdFlags)

			pipeline, err := engine.FromConfig(cfg, logger)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			if cfg.Embedding.Enabled && cfg.Embedding.PostgresDSN != "" {
				vectors, err := embedding.NewVectorStore(cfg.Embedding.PostgresDSN, 1024)
				if err != nil {
					// Embedding persistence is optional; the run proceeds.
					logger.Printf("vector store unavailable: %v", err)
				} else {
					pipeline.WithVectorStore(vectors)
				}
			}

			run, err := pipeline.ProcessChapter(context.Background(), chapter)
			if err != nil {
				return err
			}

			printSummary(run, cfg.ReportPath(chapter))
			return nil
		},
	}

	cmd.Flags().IntVar(&chapter, "chapter", 0, "chapter number to process (required)")
	cmd.MarkFlagRequired("chapter")
	return cmd
}

func similarCmd() *cobra.Command {
	var query string
	var limit int

	cmd := &cobra.Command{
		Use:   "similar",
		Short: "Find indexed scenes similar to a query text",
		Long: `Embed the query through the configured embedder and search the pgvector
scene index by cosine similarity. Requires LOREBOOK_EMBEDDING_ENABLED=true and
LOREBOOK_VECTOR_DSN.

Example:
  lorebook similar --query "叶凡租房" --limit 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if !cfg.Embedding.Enabled || cfg.Embedding.PostgresDSN == "" {
				return fmt.Errorf("similar requires LOREBOOK_EMBEDDING_ENABLED=true and LOREBOOK_VECTOR_DSN")
			}

			ctx := context.Background()
			client := embedding.NewClient(embedding.ClientConfig{
				BaseURL:           cfg.Embedding.EmbedderURL,
				Model:             cfg.Embedding.Model,
				Timeout:           cfg.Embedding.Timeout,
				RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
				Burst:             cfg.Embedding.Burst,
			})

			vector, err := client.Embed(ctx, query)
			if err != nil {
				return err
			}

			vectors, err := embedding.NewVectorStore(cfg.Embedding.PostgresDSN, len(vector))
			if err != nil {
				return err
			}
			defer vectors.Close()

			matches, err := vectors.SimilarScenes(ctx, vector, limit)
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Println("no indexed scenes")
				return nil
			}

			cyan := color.New(color.FgCyan).SprintFunc()
			for _, m := range matches {
				fmt.Printf("%s chapter %d scene %d (%.3f) %s\n  %s\n",
					cyan("•"), m.Chapter, m.SceneIndex, m.Similarity, m.Location, m.Summary)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "query text (required)")
	cmd.Flags().IntVar(&limit, "limit", 5, "maximum number of matches")
	cmd.MarkFlagRequired("query")
	return cmd
}

func schemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the relational index schema",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(index.Schema)
		},
	}
}

func printSummary(run types.Report, reportPath string) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Printf("%s chapter %d processed (run %s)\n", green("✓"), run.Chapter, run.RunID)
	fmt.Printf("  appeared:      %d\n", run.EntitiesAppeared)
	fmt.Printf("  new entities:  %d\n", run.EntitiesNew)
	fmt.Printf("  state changes: %d\n", run.StateChanges)
	fmt.Printf("  relationships: %d\n", run.RelationshipsNew)
	fmt.Printf("  scenes:        %d\n", run.ScenesChunked)
	fmt.Printf("  resolved:      %d\n", run.UncertainResolved)
	fmt.Printf("  report:        %s\n", reportPath)

	if len(run.Warnings) > 0 {
		fmt.Printf("%s %d warning(s):\n", yellow("!"), len(run.Warnings))
		for _, w := range run.Warnings {
			fmt.Printf("  - %s\n", w)
		}
	}
}
