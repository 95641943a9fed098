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
	"bufio"
	"context"
	"flag"
	"iter"
	"log/slog"
	"os"

	"github.com/poiesic/dossier"
	"github.com/poiesic/dossier/config"
	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/ingestion"
)

func news(headline, url, company string) ingestion.Payload {
	metadata := map[string]any{core.MetaSource: core.SourceNews}
	if company != "" {
		metadata[core.MetaCompany] = company
	}
	return ingestion.Payload{Content: headline + " " + url, Metadata: metadata}
}

func transcript(company, quarter string, year int, text string) ingestion.Payload {
	return ingestion.Payload{
		Content: text,
		Metadata: map[string]any{
			core.MetaSource:  core.SourceTranscript,
			core.MetaCompany: company,
			core.MetaQuarter: quarter,
			core.MetaYear:    year,
		},
	}
}

var corpus = []ingestion.Payload{
	news("ACME raises full-year guidance on cloud demand", "https://news.example.com/acme-guidance", "ACME"),
	news("ACME opens second fabrication plant in Ohio", "https://news.example.com/acme-ohio", "ACME"),
	news("ACME faces antitrust review over chip licensing", "https://news.example.com/acme-antitrust", "ACME"),
	news("Globex names new chief financial officer", "https://news.example.com/globex-cfo", "Globex"),
	news("Globex cuts 5% of workforce amid slowing ad market", "https://news.example.com/globex-layoffs", "Globex"),
	news("Globex completes acquisition of Initech analytics unit", "https://news.example.com/globex-initech", "Globex"),
	news("Initech shares slide after weak subscription numbers", "https://news.example.com/initech-slide", "Initech"),
	news("Initech settles patent dispute with Umbrella Corp", "https://news.example.com/initech-patent", "Initech"),
	news("Umbrella Corp recalls batch of diagnostic kits", "https://news.example.com/umbrella-recall", "Umbrella"),
	news("Umbrella Corp beats estimates on strong vaccine sales", "https://news.example.com/umbrella-beat", "Umbrella"),
	news("Chip shortage eases as foundries add capacity", "https://news.example.com/chip-shortage", ""),
	news("Rising interest rates weigh on software valuations", "https://news.example.com/rates-software", ""),
	transcript("ACME", "Q1", 2024, "ACME Q1 2024 earnings call. Revenue grew 18% year over year, led by cloud infrastructure. Gross margin expanded to 61% on better fab utilization. Management expects supply constraints to ease in the second half."),
	transcript("ACME", "Q2", 2024, "ACME Q2 2024 earnings call. Cloud revenue rose 30% and now accounts for 40% of sales. Operating expenses rose with the Ohio plant ramp. Full-year guidance raised to 22% growth."),
	transcript("Globex", "Q2", 2024, "Globex Q2 2024 earnings call. Advertising revenue declined 4% as customers cut budgets. The company announced a restructuring plan targeting 300 million dollars in annual savings."),
	transcript("Initech", "Q2", 2024, "Initech Q2 2024 earnings call. Subscriptions grew 3%, below guidance. Churn increased among small business customers. The CFO cited pricing pressure from larger competitors."),
	transcript("Umbrella", "Q2", 2024, "Umbrella Q2 2024 earnings call. Vaccine sales exceeded expectations. The diagnostic kit recall will cost an estimated 40 million dollars. R&D spending increased 12%."),
	{Content: "Analyst note: semiconductor equipment lead times shortened from 14 to 9 months in the first half of 2024.", Metadata: map[string]any{"author": "research desk"}},
	{Content: "Analyst note: enterprise software buyers are consolidating vendors, favoring platforms with bundled analytics.", Metadata: map[string]any{"author": "research desk"}},
}

var (
	seedFileName = flag.String("src", "", "file of seed documents, one per line")
	configFile   = flag.String("config", "dossier.yml", "configuration file")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// payloadsFromFile returns an iterator over the lines of a file, each taken
// as the text of one document.
func payloadsFromFile(filename string) (iter.Seq[ingestion.Payload], error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	return func(yield func(ingestion.Payload) bool) {
		defer f.Close()
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if !yield(ingestion.Text(scanner.Text(), nil)) {
				return
			}
		}
	}, nil
}

// payloadsFromSlice returns an iterator over a slice of payloads.
func payloadsFromSlice(payloads []ingestion.Payload) iter.Seq[ingestion.Payload] {
	return func(yield func(ingestion.Payload) bool) {
		for _, p := range payloads {
			if !yield(p) {
				return
			}
		}
	}
}

// ingestBatched reads from a source iterator and ingests documents in batches.
func ingestBatched(ctx context.Context, engine *dossier.Engine, source iter.Seq[ingestion.Payload], batchSize int) error {
	batch := make([]ingestion.Payload, 0, batchSize)

	for p := range source {
		batch = append(batch, p)
		if len(batch) == batchSize {
			if _, err := engine.Ingest(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	// Process any remaining documents
	if len(batch) > 0 {
		if _, err := engine.Ingest(ctx, batch); err != nil {
			return err
		}
	}

	return nil
}

func main() {
	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()
	engine, err := dossier.Open(ctx, cfg)
	if err != nil {
		panic(err)
	}
	defer engine.Close()

	// Determine source of seed data
	var source iter.Seq[ingestion.Payload]
	if seedFileName != nil && *seedFileName != "" {
		source, err = payloadsFromFile(*seedFileName)
		if err != nil {
			panic(err)
		}
	} else {
		source = payloadsFromSlice(corpus)
	}

	// Ingest in batches of 5
	if err := ingestBatched(ctx, engine, source, 5); err != nil {
		panic(err)
	}
	slog.Info("seeded index", "path", cfg.Index.Path, "count", engine.Stats().Count)
}
