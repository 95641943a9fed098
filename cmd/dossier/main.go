// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/dossier/config"
	"github.com/poiesic/dossier/reindex"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "dossier",
		Usage: "Answer research questions about companies from news and earnings calls",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				Value:   "dossier.yml",
				EnvVars: []string{"DOSSIER_CONFIG"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "query",
				Usage:     "Answer a question with sources",
				ArgsUsage: "<question...>",
				Action:    queryCommand,
				Flags: append(filterFlags(),
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print the result as JSON",
					},
				),
			},
			{
				Name:      "retrieve",
				Usage:     "List the documents most similar to a question without composing an answer",
				ArgsUsage: "<question...>",
				Action:    retrieveCommand,
				Flags:     filterFlags(),
			},
			{
				Name:      "ingest",
				Usage:     "Add documents from a JSON Lines file ('-' reads stdin)",
				ArgsUsage: "<file.jsonl|->",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "source",
						Usage: "Provenance tag for documents without one (defaults to ingestion.source)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents per ingest call",
						Value: 100,
					},
				},
			},
			{
				Name:   "serve",
				Usage:  "Serve queries and ingestion over HTTP",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address (defaults to server.addr)",
					},
					&cli.BoolFlag{
						Name:  "allow-all-origins",
						Usage: "Allow cross-origin requests from any origin",
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Show index statistics",
				Action: statsCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print statistics as JSON",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Rebuild the index with a different embedding provider",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "target",
						Aliases:  []string{"t"},
						Usage:    "Path of the new index",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "embedding-provider",
						Usage: "Embedding provider for the new index (local, openai)",
					},
					&cli.StringFlag{
						Name:  "embedding-host",
						Usage: "Embedding service host URL",
					},
					&cli.StringFlag{
						Name:  "embedding-model",
						Usage: "Embedding model name",
					},
					&cli.IntFlag{
						Name:  "dimension",
						Usage: "Vector width of the local embedder",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of entries to process in each batch",
						Value: reindex.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N entries",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration with credentials masked",
				Action: configCommand,
			},
		},
	}
}

func filterFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:  "k",
			Usage: "Number of documents to retrieve (defaults to retrieval.k)",
		},
		&cli.DurationFlag{
			Name:  "lookback",
			Usage: "Only use documents ingested within this window, e.g. 72h",
		},
		&cli.StringSliceFlag{
			Name:  "where",
			Usage: "Metadata filter as key=value, repeatable",
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
