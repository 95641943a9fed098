package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/poiesic/dossier/answer"
	"github.com/poiesic/dossier/ingestion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// run executes the CLI with args and returns what it wrote to stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	app := newApp()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	err := app.Run(append([]string{"dossier"}, args...))
	return out.String(), err
}

// writeConfig isolates the test from the caller's environment and writes a
// configuration pointing at a fresh index.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("VECTOR_DB_PATH", "")

	indexPath := filepath.Join(dir, "vector_db")
	cfgPath := filepath.Join(dir, "dossier.yml")
	yml := "index:\n  path: " + indexPath + "\nembedding:\n  dimension: 64\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(yml), 0600))
	return cfgPath, indexPath
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corpus.jsonl")
	lines := []string{
		`{"content":"Chip shortage eases http://news.example.com/chips","metadata":{"source":"news-provider"}}`,
		`{"content":"ACME Q2 2024 earnings call: cloud revenue rose 30 percent","metadata":{"source":"transcript-provider","company":"ACME","quarter":"Q2","year":2024}}`,
		``,
		`{"content":"   "}`,
		`not json`,
	}
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0600))
	return path
}

func TestCommands_EndToEnd(t *testing.T) {
	cfgPath, indexPath := writeConfig(t)
	corpus := writeCorpus(t)

	out, err := run(t, "--config", cfgPath, "ingest", corpus)
	require.NoError(t, err)
	assert.Contains(t, out, "Ingested 2 documents (2 rejected), index now holds 3 entries")

	out, err = run(t, "--config", cfgPath, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Entries:   3")
	assert.Contains(t, out, "Dimension: 64")

	out, err = run(t, "--config", cfgPath, "retrieve", "--k", "1", "chip", "shortage")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 documents")
	assert.Contains(t, out, "Chip shortage eases (news-provider)")

	out, err = run(t, "--config", cfgPath, "retrieve", "--where", "company=ACME", "revenue")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 1 documents")
	assert.Contains(t, out, "transcript-provider")

	out, err = run(t, "--config", cfgPath, "query", "--k", "1", "Is the chip shortage easing?")
	require.NoError(t, err)
	assert.Contains(t, out, answer.UnavailableAnswer)
	assert.Contains(t, out, "Sources:")
	assert.Contains(t, out, "[1] Chip shortage eases <http://news.example.com/chips> (news)")

	out, err = run(t, "--config", cfgPath, "query", "--json", "--k", "1", "Is the chip shortage easing?")
	require.NoError(t, err)
	assert.Contains(t, out, `"degraded": true`)

	target := filepath.Join(t.TempDir(), "reindexed")
	out, err = run(t, "--config", cfgPath, "reindex", "--target", target, "--dimension", "32", "--retry-delay", "1ms")
	require.NoError(t, err)
	assert.Contains(t, out, "Rebuilt 3 entries at "+target)

	_, err = run(t, "--config", cfgPath, "reindex", "--target", indexPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target must differ")

	out, err = run(t, "--config", cfgPath, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "path: "+indexPath)
	assert.Contains(t, out, "dimension: 64")
}

func TestCommands_Validation(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"query needs a question", []string{"query"}, "a question is required"},
		{"retrieve rejects bad filter", []string{"retrieve", "--where", "company", "q"}, "expected key=value"},
		{"negative k", []string{"query", "--k", "-1", "q"}, "k must not be negative"},
		{"ingest needs a file", []string{"ingest"}, "exactly one input file"},
		{"ingest batch size", []string{"ingest", "--batch-size", "0", "x.jsonl"}, "batch-size must be greater than 0"},
		{"ingest missing file", []string{"ingest", "missing.jsonl"}, "failed to open input"},
		{"reindex needs target", []string{"reindex"}, "target"},
		{"reindex max retries", []string{"reindex", "--target", "elsewhere", "--max-retries", "0"}, "max-retries must be greater than 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append([]string{"--config", cfgPath}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseWhere(t *testing.T) {
	tests := []struct {
		name    string
		pairs   []string
		want    map[string]string
		wantErr bool
	}{
		{"none", nil, nil, false},
		{"single", []string{"company=ACME"}, map[string]string{"company": "ACME"}, false},
		{"trims", []string{" year = 2024 "}, map[string]string{"year": "2024"}, false},
		{"value with equals", []string{"title=a=b"}, map[string]string{"title": "a=b"}, false},
		{"empty value", []string{"quarter="}, map[string]string{"quarter": ""}, false},
		{"missing separator", []string{"company"}, nil, true},
		{"empty key", []string{"=ACME"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseWhere(tt.pairs)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// batchRecorder accepts every payload with non-empty string content.
type batchRecorder struct {
	batches [][]ingestion.Payload
	err     error
}

func (b *batchRecorder) Ingest(_ context.Context, payloads []ingestion.Payload) (*ingestion.Report, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.batches = append(b.batches, append([]ingestion.Payload(nil), payloads...))
	report := &ingestion.Report{}
	for i, p := range payloads {
		if s, ok := p.Content.(string); ok && strings.TrimSpace(s) != "" {
			report.Accepted++
			continue
		}
		report.Rejected = append(report.Rejected, ingestion.Rejection{Index: i, Reason: "invalid document"})
	}
	return report, nil
}

func TestIngestJSONL(t *testing.T) {
	input := strings.Join([]string{
		`{"content":"one"}`,
		`{"content":""}`,
		``,
		`{"content":"three","metadata":{"company":"ACME"}}`,
		`{broken`,
		`{"content":"five"}`,
	}, "\n")

	rec := &batchRecorder{}
	var errOut bytes.Buffer
	summary, err := ingestJSONL(context.Background(), rec, strings.NewReader(input), 2, &errOut)
	require.NoError(t, err)

	assert.Equal(t, 6, summary.Lines)
	assert.Equal(t, 3, summary.Accepted)
	assert.Equal(t, 2, summary.Rejected)

	require.Len(t, rec.batches, 2)
	assert.Len(t, rec.batches[0], 2)
	assert.Len(t, rec.batches[1], 2)
	assert.Equal(t, "ACME", rec.batches[1][0].Metadata["company"])

	assert.Contains(t, errOut.String(), "line 2: invalid document")
	assert.Contains(t, errOut.String(), "line 5: invalid JSON")
}

func TestIngestJSONL_StorageFailure(t *testing.T) {
	rec := &batchRecorder{err: errors.New("disk full")}
	_, err := ingestJSONL(context.Background(), rec, strings.NewReader(`{"content":"x"}`), 10, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestSetupLogger(t *testing.T) {
	t.Run("valid log levels", func(t *testing.T) {
		testCases := []struct {
			input    string
			expected slog.Level
		}{
			{"debug", slog.LevelDebug},
			{"info", slog.LevelInfo},
			{"warn", slog.LevelWarn},
			{"error", slog.LevelError},
		}

		for _, tc := range testCases {
			t.Run(tc.input, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: tc.input,
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc.input})
				require.NoError(t, err)
				assert.True(t, slog.Default().Enabled(context.Background(), tc.expected))
				assert.False(t, slog.Default().Enabled(context.Background(), tc.expected-1))
			})
		}
	})

	t.Run("case insensitive log levels", func(t *testing.T) {
		for _, tc := range []string{"DEBUG", "Info", "WaRn", "ERROR"} {
			t.Run(tc, func(t *testing.T) {
				app := &cli.App{
					Name: "test",
					Flags: []cli.Flag{
						&cli.StringFlag{
							Name:  "log-level",
							Value: "info",
						},
					},
					Before: setupLogger,
					Action: func(c *cli.Context) error {
						return nil
					},
				}

				err := app.Run([]string{"test", "--log-level", tc})
				require.NoError(t, err)
			})
		}
	})

	t.Run("invalid log level returns error", func(t *testing.T) {
		_, err := run(t, "--log-level", "invalid", "stats")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid log level")
	})

	t.Run("log-level flag has alias -l", func(t *testing.T) {
		app := newApp()
		app.Commands = nil
		app.Action = func(c *cli.Context) error {
			assert.Equal(t, "debug", c.String("log-level"))
			return nil
		}
		require.NoError(t, app.Run([]string{"dossier", "-l", "debug"}))
	})
}

func TestMain(m *testing.M) {
	// Run tests
	code := m.Run()
	os.Exit(code)
}
