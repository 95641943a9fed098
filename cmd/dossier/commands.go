package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/poiesic/dossier"
	"github.com/poiesic/dossier/answer"
	"github.com/poiesic/dossier/core"
	"github.com/poiesic/dossier/ingestion"
	"github.com/poiesic/dossier/reindex"
	"github.com/poiesic/dossier/server"
	"github.com/urfave/cli/v2"
)

// maxLineBytes caps a single JSON Lines record.
const maxLineBytes = 16 << 20

func queryCommand(c *cli.Context) error {
	question, opts, err := questionArgs(c)
	if err != nil {
		return err
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	result, err := engine.Query(c.Context, question, opts)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if c.Bool("json") {
		return printJSON(c.App.Writer, result)
	}
	if result.Degraded {
		fmt.Fprintf(c.App.ErrWriter, "warning: degraded answer: %s\n", result.Diagnostic)
	}
	printResult(c.App.Writer, result)
	return nil
}

func retrieveCommand(c *cli.Context) error {
	question, opts, err := questionArgs(c)
	if err != nil {
		return err
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	matches, err := engine.Retrieve(c.Context, question, opts)
	if err != nil {
		return fmt.Errorf("retrieval failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Found %d documents\n", len(matches))
	for i, m := range matches {
		doc := m.Entry.Document
		ref := answer.AttributeDocument(doc)
		fmt.Fprintf(c.App.Writer, "%d: [%0.3f] %s (%s)\n", i+1, m.Distance, ref.Title, doc.Source())
	}
	return nil
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one input file is required ('-' reads stdin)")
	}
	batchSize := c.Int("batch-size")
	if batchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}

	var in io.Reader = os.Stdin
	if name := c.Args().First(); name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if src := c.String("source"); src != "" {
		cfg.Ingestion.Source = src
	}
	engine, err := dossier.Open(c.Context, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	summary, err := ingestJSONL(c.Context, engine, in, batchSize, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("ingest failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Ingested %d documents (%d rejected), index now holds %d entries\n",
		summary.Accepted, summary.Rejected, engine.Stats().Count)
	return nil
}

func serveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if addr := c.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}
	if c.Bool("allow-all-origins") {
		cfg.Server.AllowAllOrigins = true
	}

	engine, err := dossier.Open(c.Context, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	srv := server.New(server.Config{
		Addr:           cfg.Server.Addr,
		AllowAll:       cfg.Server.AllowAllOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	}, engine)

	// Graceful shutdown.
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		fmt.Fprintln(c.App.ErrWriter, "\nShutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	fmt.Fprintf(c.App.ErrWriter, "dossier server starting on %s\n", cfg.Server.Addr)
	fmt.Fprintf(c.App.ErrWriter, "  Index: %s (%s)\n", cfg.Index.Path, cfg.Index.Backend)
	fmt.Fprintf(c.App.ErrWriter, "  Documents indexed: %d\n", engine.Stats().Count)

	return srv.Start()
}

func statsCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	engine, err := dossier.Open(c.Context, cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	stats := engine.Stats()
	if c.Bool("json") {
		return printJSON(c.App.Writer, stats)
	}

	w := c.App.Writer
	fmt.Fprintf(w, "Path:      %s\n", cfg.Index.Path)
	fmt.Fprintf(w, "Backend:   %s\n", cfg.Index.Backend)
	fmt.Fprintf(w, "Entries:   %d\n", stats.Count)
	fmt.Fprintf(w, "Model:     %s\n", stats.Model)
	fmt.Fprintf(w, "Dimension: %d\n", stats.Dimension)
	fmt.Fprintf(w, "Metric:    %s\n", stats.Metric)
	fmt.Fprintf(w, "Created:   %s\n", stats.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Updated:   %s\n", stats.UpdatedAt.Format(time.RFC3339))
	return nil
}

func reindexCommand(c *cli.Context) error {
	ctx := c.Context

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	target := c.String("target")
	if target == "" {
		return fmt.Errorf("target path is required")
	}
	if filepath.Clean(target) == filepath.Clean(cfg.Index.Path) {
		return fmt.Errorf("target must differ from index path %s", cfg.Index.Path)
	}

	// Create reindex config
	reindexConfig := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}

	// Validate config
	if reindexConfig.BatchSize <= 0 {
		return fmt.Errorf("batch-size must be greater than 0")
	}
	if reindexConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reindexConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	next := *cfg
	if v := c.String("embedding-provider"); v != "" {
		next.Embedding.Provider = v
	}
	if v := c.String("embedding-host"); v != "" {
		next.Embedding.Host = v
	}
	if v := c.String("embedding-model"); v != "" {
		next.Embedding.Model = v
	}
	if v := c.Int("dimension"); v > 0 {
		next.Embedding.Dimension = v
	}

	provider, err := dossier.NewProvider(ctx, &next)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	defer provider.Close()

	open, err := dossier.RepositoryOpener(cfg.Index.Backend)
	if err != nil {
		return err
	}
	source, err := open(cfg.Index.Path)
	if err != nil {
		return fmt.Errorf("failed to open source index: %w", err)
	}
	defer source.Close()

	dest, err := open(target)
	if err != nil {
		return fmt.Errorf("failed to open target index: %w", err)
	}
	defer dest.Close()

	embedder := provider.Embedder()
	fmt.Fprintf(c.App.ErrWriter, "Source: %s\n", cfg.Index.Path)
	fmt.Fprintf(c.App.ErrWriter, "Target: %s\n", target)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s (%d dimensions)\n", embedder.Model(), embedder.Dimension())
	fmt.Fprintln(c.App.ErrWriter)

	result, err := reindex.Run(ctx, source, dest, embedder, reindexConfig, c.App.ErrWriter)
	if err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Rebuilt %d entries at %s with %s. Set index.path and the embedding section to use it.\n",
		result.Entries, target, result.Manifest.Model)
	return nil
}

func configCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	return cfg.WriteYAML(c.App.Writer)
}

func openEngine(c *cli.Context) (*dossier.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return dossier.Open(c.Context, cfg)
}

// questionArgs joins the positional arguments into a question and reads the
// filter flags.
func questionArgs(c *cli.Context) (string, dossier.QueryOptions, error) {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return "", dossier.QueryOptions{}, fmt.Errorf("a question is required")
	}
	if c.Int("k") < 0 {
		return "", dossier.QueryOptions{}, fmt.Errorf("k must not be negative")
	}
	if c.Duration("lookback") < 0 {
		return "", dossier.QueryOptions{}, fmt.Errorf("lookback must not be negative")
	}
	where, err := parseWhere(c.StringSlice("where"))
	if err != nil {
		return "", dossier.QueryOptions{}, err
	}
	return question, dossier.QueryOptions{
		K:        c.Int("k"),
		Lookback: c.Duration("lookback"),
		Where:    where,
	}, nil
}

// parseWhere turns key=value pairs into a metadata filter.
func parseWhere(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	where := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", pair)
		}
		where[key] = strings.TrimSpace(value)
	}
	return where, nil
}

type ingester interface {
	Ingest(ctx context.Context, payloads []ingestion.Payload) (*ingestion.Report, error)
}

type ingestSummary struct {
	Lines    int
	Accepted int
	Rejected int
}

// ingestJSONL reads one payload per line and ingests them in batches.
// Malformed lines and rejected payloads are reported to errOut by line number
// and skipped; a storage failure stops the run.
func ingestJSONL(ctx context.Context, engine ingester, r io.Reader, batchSize int, errOut io.Writer) (*ingestSummary, error) {
	summary := &ingestSummary{}
	batch := make([]ingestion.Payload, 0, batchSize)
	lines := make([]int, 0, batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		report, err := engine.Ingest(ctx, batch)
		if err != nil {
			return err
		}
		summary.Accepted += report.Accepted
		for _, rej := range report.Rejected {
			fmt.Fprintf(errOut, "line %d: %s\n", lines[rej.Index], rej.Reason)
			summary.Rejected++
		}
		batch = batch[:0]
		lines = lines[:0]
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		summary.Lines++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var p ingestion.Payload
		if err := sonic.ConfigStd.UnmarshalFromString(text, &p); err != nil {
			fmt.Fprintf(errOut, "line %d: invalid JSON: %v\n", summary.Lines, err)
			summary.Rejected++
			continue
		}
		batch = append(batch, p)
		lines = append(lines, summary.Lines)

		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return summary, err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("reading input: %w", err)
	}
	if err := flush(); err != nil {
		return summary, err
	}
	return summary, nil
}

func printResult(w io.Writer, result *core.QueryResult) {
	fmt.Fprintln(w, result.Answer)
	if len(result.Sources) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Sources:")
	for i, src := range result.Sources {
		line := fmt.Sprintf("  [%d] %s", i+1, src.Title)
		if src.URL != "" {
			line += " <" + src.URL + ">"
		}
		fmt.Fprintf(w, "%s (%s)\n", line, src.Type)
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

var _ ingester = (*dossier.Engine)(nil)
