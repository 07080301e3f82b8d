package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/nikhilbhutani/retrieva/internal/rag"
	"github.com/nikhilbhutani/retrieva/pkg/textextract"
)

type askOptions struct {
	questions []string
	provider  string
	model     string
	apiKey    string
	jsonOut   bool
}

func NewAskCmd() *cobra.Command {
	opts := &askOptions{}

	cmd := &cobra.Command{
		Use:   "ask FILE",
		Short: "Index a file and answer questions about it",
		Long: `Index a local file and answer each question using only its content.

Supported types: .pdf, .docx, .txt, .md, .sql, .csv and .json.
Progress is printed to stderr.`,
		Example: `  retrieva ask report.pdf -q "What was the revenue?" -q "Who signed it?"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.questions, "question", "q", nil, "question to ask (repeatable)")
	cmd.Flags().StringVar(&opts.provider, "provider", "", "answer provider (default from LLM_DEFAULT_PROVIDER)")
	cmd.Flags().StringVar(&opts.model, "model", "", "answer model")
	cmd.Flags().StringVar(&opts.apiKey, "api-key", "", "answer provider API key")
	cmd.Flags().BoolVar(&opts.jsonOut, "json", false, "print responses as JSON lines")
	_ = cmd.MarkFlagRequired("question")

	return cmd
}

func runAsk(cmd *cobra.Command, path string, opts *askOptions) error {
	ctx := cmd.Context()
	stderr := &syncWriter{w: cmd.ErrOrStderr()}
	out := cmd.OutOrStdout()

	text, err := readDocument(path)
	if err != nil {
		return err
	}

	a, err := buildApp(ctx, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	events, cancel := a.Progress.Subscribe(nil)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range events {
			fmt.Fprintln(stderr, ev.Message)
		}
	}()
	defer func() {
		cancel()
		wg.Wait()
	}()

	ingested, err := a.Pipeline.Ingest(ctx, rag.IngestRequest{Filename: filepath.Base(path), Text: text})
	if err != nil {
		return fmt.Errorf("ingest %s: %w", path, err)
	}
	fmt.Fprintf(stderr, "Indexed %s: %d chunks\n", ingested.Filename, ingested.ChunksAdded)

	enc := json.NewEncoder(out)
	for _, q := range opts.questions {
		resp, err := a.Pipeline.Query(ctx, rag.QueryRequest{
			Question:  q,
			SessionID: ingested.SessionID,
			APIKey:    opts.apiKey,
			Provider:  opts.provider,
			Model:     opts.model,
		})
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}

		if opts.jsonOut {
			if err := enc.Encode(resp); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(out, "Q: %s\nA: %s\n\n", resp.Question, resp.Answer)
	}
	return nil
}

func readDocument(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat document: %w", err)
	}

	extracted, err := textextract.Extract(f, info.Size(), textextract.TypeFromFilename(path))
	if err != nil {
		return "", err
	}
	return extracted.Content, nil
}

// syncWriter serializes log lines and progress lines written to stderr from
// different goroutines.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
