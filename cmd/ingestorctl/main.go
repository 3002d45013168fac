// ingestorctl is the operations CLI for the ingestion pipeline: enqueue
// videos, inspect collections, and clear them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/urfave/cli/v2"

	"github.com/vidqa/ingestor/internal/config"
	"github.com/vidqa/ingestor/internal/jobs"
	"github.com/vidqa/ingestor/internal/observability"
	"github.com/vidqa/ingestor/internal/vectorstore"
	"github.com/vidqa/ingestor/pkg/database"
)

func main() {
	app := &cli.App{
		Name:  "ingestorctl",
		Usage: "operate the video ingestion pipeline",
		Commands: []*cli.Command{
			enqueueCommand(),
			statsCommand(),
			clearCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// connect loads config and opens the database pool shared by all commands.
func connect(ctx context.Context) (*config.Config, *pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	observability.SetupLogging("warn", cfg.LogFormat)

	db, err := database.NewPostgresPool(ctx, cfg.DatabaseURL, database.WithVectorTypes())
	if err != nil {
		return nil, nil, err
	}

	return cfg, db, nil
}

func enqueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "enqueue",
		Usage: "queue one video for ingestion",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "url", Usage: "video page URL", Required: true},
			&cli.StringFlag{Name: "collection", Usage: "target collection", Required: true},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context

			_, db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			// Insert-only client: no workers, never started.
			riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{})
			if err != nil {
				return fmt.Errorf("create River client: %w", err)
			}

			inserter := jobs.NewRiverJobInserter(riverClient)

			args := jobs.IngestArgs{
				VideoURL:     c.String("url"),
				CollectionID: c.String("collection"),
			}
			if err := inserter.InsertIngestJob(ctx, args); err != nil {
				return err
			}

			fmt.Printf("enqueued %s into collection %s\n", args.VideoURL, args.CollectionID)

			return nil
		},
	}
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "show what a collection holds",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "collection", Usage: "collection to inspect", Required: true},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context

			_, db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := vectorstore.NewRepository(db).Stats(ctx, c.String("collection"))
			if err != nil {
				return err
			}

			fmt.Printf("collection %s: %d records across %d videos\n",
				stats.CollectionID, stats.Records, stats.Videos)

			for model, count := range stats.ByModel {
				fmt.Printf("  %s: %d records\n", model, count)
			}

			return nil
		},
	}
}

func clearCommand() *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "delete every record in a collection",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "collection", Usage: "collection to clear", Required: true},
			&cli.StringFlag{Name: "video", Usage: "limit deletion to one video"},
			&cli.BoolFlag{Name: "yes", Usage: "skip confirmation"},
		},
		Action: func(c *cli.Context) error {
			ctx := c.Context
			collection := c.String("collection")
			video := c.String("video")

			if !c.Bool("yes") {
				target := "collection " + collection
				if video != "" {
					target = fmt.Sprintf("video %s in collection %s", video, collection)
				}

				fmt.Printf("This deletes every record for %s. Re-run with --yes to confirm.\n", target)

				return nil
			}

			_, db, err := connect(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			repo := vectorstore.NewRepository(db)

			var deleted int64
			if video != "" {
				deleted, err = repo.DeleteByVideo(ctx, collection, video)
			} else {
				deleted, err = repo.DeleteByCollection(ctx, collection)
			}

			if err != nil {
				return err
			}

			slog.Info("records deleted", "collection", collection, "count", deleted)
			fmt.Printf("deleted %d records\n", deleted)

			return nil
		},
	}
}
