package main

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/urfave/cli/v2"
	_ "modernc.org/sqlite"

	"feed_notifier/internal/fetcher"
	"feed_notifier/migrations"
)

func newApp(client fetcher.HTTPClient) *cli.App {
	return &cli.App{
		Name:  "feedctl",
		Usage: "Administer the feed notifier",
		Description: `Maintenance commands for the feed notifier: database migrations and a
		dry-run preview of how the monitored feed is normalized.

		Flags can be set via the same environment variables as the service, e.g.:

		--db => DATABASE_PATH=./data/bot.db
		--url => FEED_URL=https://u2.dmhy.org/torrentrss.php`,
		Commands: []*cli.Command{
			migrateCmd(),
			previewCmd(client),
		},
		Action: func(ctx *cli.Context) error {
			return cli.ShowAppHelp(ctx)
		},
	}
}

func dbFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "db",
		Usage:   "path to the SQLite database",
		EnvVars: []string{"DATABASE_PATH"},
		Value:   "./data/bot.db",
	}
}

func migrateCmd() *cli.Command {
	step := func(name, usage string, fn func(db *sql.DB, dir string) error) *cli.Command {
		return &cli.Command{
			Name:  name,
			Usage: usage,
			Action: func(ctx *cli.Context) error {
				return withDB(ctx.String("db"), func(db *sql.DB) error {
					if err := fn(db, "."); err != nil {
						return fmt.Errorf("%s: %w", name, err)
					}
					return nil
				})
			},
		}
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the subscriber database schema",
		Flags: []cli.Flag{dbFlag()},
		Subcommands: []*cli.Command{
			step("up", "Migrate to the latest version", func(db *sql.DB, dir string) error { return goose.Up(db, dir) }),
			step("up-one", "Migrate one version up", func(db *sql.DB, dir string) error { return goose.UpByOne(db, dir) }),
			step("down", "Roll back one version", func(db *sql.DB, dir string) error { return goose.Down(db, dir) }),
			step("status", "Show migration status", func(db *sql.DB, dir string) error { return goose.Status(db, dir) }),
			step("version", "Show current version", func(db *sql.DB, dir string) error { return goose.Version(db, dir) }),
			step("reset", "Roll back all migrations", func(db *sql.DB, dir string) error { return goose.Reset(db, dir) }),
		},
	}
}

func withDB(path string, fn func(db *sql.DB) error) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := migrations.Setup(); err != nil {
		return err
	}
	return fn(db)
}

func previewCmd(client fetcher.HTTPClient) *cli.Command {
	return &cli.Command{
		Name:        "preview",
		Usage:       "Fetch the feed once and print the normalized entries",
		Description: `Downloads the feed, normalizes every item exactly as the monitor does and prints the newest entries. Nothing is stored or sent.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "url",
				Usage:    "feed URL",
				EnvVars:  []string{"FEED_URL"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "category",
				Usage:   "category used when an item has none",
				EnvVars: []string{"FEED_DEFAULT_CATEGORY"},
				Value:   fetcher.DefaultCategory,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "number of entries to print",
				Value:   5,
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Usage:   "request timeout",
				EnvVars: []string{"FETCH_TIMEOUT"},
				Value:   fetcher.DefaultTimeout,
			},
		},
		Action: func(ctx *cli.Context) error {
			url := ctx.String("url")
			f := fetcher.New(client, fetcher.NewNormalizer(url, ctx.String("category")))
			f.SetTimeout(ctx.Duration("timeout"))

			entries, err := f.FetchEntries(ctx.Context, url)
			if err != nil {
				return err
			}

			out := ctx.App.Writer
			fmt.Fprintf(out, "%d entries\n", len(entries))
			for i, e := range entries[:min(max(ctx.Int("limit"), 0), len(entries))] {
				fmt.Fprintf(out, "\n#%d %s\n", i+1, e.Title)
				fmt.Fprintf(out, "  id:        %s\n", e.ID)
				fmt.Fprintf(out, "  link:      %s\n", e.Link)
				fmt.Fprintf(out, "  image:     %s\n", e.Image)
				fmt.Fprintf(out, "  category:  %s\n", e.Category)
				fmt.Fprintf(out, "  uploader:  %s\n", e.Uploader)
				fmt.Fprintf(out, "  size:      %s\n", e.Size)
				fmt.Fprintf(out, "  published: %s\n", e.PublishedAt.UTC().Format(time.RFC3339))
			}
			return nil
		},
	}
}
