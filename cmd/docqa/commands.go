package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docqa/internal/domain"
	domusage "github.com/kailas-cloud/docqa/internal/domain/usage"
	"github.com/kailas-cloud/docqa/internal/extract"
	"github.com/kailas-cloud/docqa/internal/usecase/rag"
	"github.com/kailas-cloud/docqa/internal/version"
)

func newIngestCmd(g *globalFlags) *cobra.Command {
	var keepGoing bool
	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Extract, chunk and index documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				res, err := ingestFile(cmd, a, path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: FAILED: %v\n", path, err)
					if !keepGoing {
						return fmt.Errorf("ingest %s: %w", path, err)
					}
					continue
				}
				fmt.Fprintf(out, "%s: %d chunks (document %s)\n", path, res.Chunks, res.DocumentID)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "continue with the next file after a failure")
	return cmd
}

func ingestFile(cmd *cobra.Command, a *app, path string) (rag.AddResult, error) {
	ext := extract.FileExtension(path)
	if !extract.Supported(ext) {
		return rag.AddResult{}, fmt.Errorf("%w: .%s", domain.ErrUnsupportedFileType, ext)
	}

	text, err := a.extractor.Extract(cmd.Context(), path, ext)
	if err != nil {
		return rag.AddResult{}, err
	}

	meta := domain.DocumentMeta{Filename: filepath.Base(path), FileType: ext}
	if abs, err := filepath.Abs(path); err == nil {
		meta.Extra = map[string]string{"source_path": abs}
	}
	return a.engine.AddDocument(cmd.Context(), text, meta)
}

func newAskCmd(g *globalFlags) *cobra.Command {
	var (
		topK    int
		asJSON  bool
		sources bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			question := strings.Join(args, " ")
			ans, err := a.engine.Ask(cmd.Context(), question, topK)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, askOutput{
					Question:   question,
					Answer:     ans.Answer,
					HasContext: ans.HasContext,
					Contexts:   toContextOutput(ans.Contexts),
				})
			}
			fmt.Fprintln(out, ans.Answer)
			if sources && len(ans.Contexts) > 0 {
				fmt.Fprintln(out)
				printContexts(out, ans.Contexts, 120)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (0 = configured default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&sources, "sources", false, "print the retrieved chunks after the answer")
	return cmd
}

func newQueryCmd(g *globalFlags) *cobra.Command {
	var (
		topK   int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Show the chunks closest to a query without generating an answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			contexts, err := a.engine.Query(cmd.Context(), strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, toContextOutput(contexts))
			}
			if len(contexts) == 0 {
				fmt.Fprintln(out, "no results")
				return nil
			}
			printContexts(out, contexts, 0)
			return nil
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (0 = configured default)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func newStatsCmd(g *globalFlags) *cobra.Command {
	var (
		asJSON bool
		docs   bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index state and document counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			st := a.engine.Stats()
			out := cmd.OutOrStdout()
			if asJSON {
				so := statsOutput{
					State:           st.State.String(),
					DocumentCount:   st.DocumentCount,
					ChunkCount:      st.ChunkCount,
					Dimension:       st.Dimension,
					EmbeddingModel:  st.EmbeddingModel,
					GenerationModel: st.GenerationModel,
					VectorDB:        st.VectorDB,
					IndexDir:        st.IndexDir,
				}
				if docs {
					so.Documents = a.engine.Documents()
				}
				return writeJSON(out, so)
			}

			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "state:\t%s\n", st.State)
			fmt.Fprintf(tw, "documents:\t%d\n", st.DocumentCount)
			fmt.Fprintf(tw, "chunks:\t%d\n", st.ChunkCount)
			fmt.Fprintf(tw, "dimension:\t%d\n", st.Dimension)
			fmt.Fprintf(tw, "embedding model:\t%s\n", st.EmbeddingModel)
			fmt.Fprintf(tw, "generation model:\t%s\n", st.GenerationModel)
			fmt.Fprintf(tw, "vector db:\t%s\n", st.VectorDB)
			fmt.Fprintf(tw, "index dir:\t%s\n", st.IndexDir)
			if err := tw.Flush(); err != nil {
				return err
			}

			if docs {
				fmt.Fprintln(out)
				tw = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tFILENAME\tTYPE\tCHUNKS\tADDED")
				for _, d := range a.engine.Documents() {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
						d.DocumentID, d.Filename, d.FileType, d.Chunks,
						time.UnixMilli(d.AddedAt).UTC().Format(time.RFC3339))
				}
				return tw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().BoolVar(&docs, "documents", false, "list ingested documents")
	return cmd
}

func newClearCmd(g *globalFlags) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the index and all ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear the index without --yes")
			}
			a, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.engine.Clear(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("Index cleared", zap.String("index_dir", a.cfg.Index.Dir))
			fmt.Fprintln(cmd.OutOrStdout(), "index cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

func newUsageCmd(g *globalFlags) *cobra.Command {
	var period string
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show provider token usage against the configured budget",
		Long:  "Counters are shared between processes only when a cache store is configured.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := domusage.ParsePeriod(period)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer a.Close()

			r := a.usage.GetReport(cmd.Context(), p)
			b := r.Budget
			limit, remaining := "unlimited", "unlimited"
			if b.Limit > 0 {
				limit, remaining = fmt.Sprint(b.Limit), fmt.Sprint(b.Remaining)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "period:\t%s (%s .. %s)\n", r.Period,
				time.UnixMilli(r.PeriodStart).UTC().Format(time.DateOnly),
				time.UnixMilli(r.PeriodEnd).UTC().Format(time.DateOnly))
			fmt.Fprintf(tw, "provider:\t%s\n", a.cfg.Provider.Name)
			fmt.Fprintf(tw, "tokens used:\t%d\n", b.Used)
			fmt.Fprintf(tw, "limit:\t%s\n", limit)
			fmt.Fprintf(tw, "remaining:\t%s\n", remaining)
			fmt.Fprintf(tw, "exhausted:\t%t\n", b.Exhausted)
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&period, "period", "day", "day or month")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

type contextOutput struct {
	Content  string               `json:"content"`
	Score    float32              `json:"score"`
	Metadata domain.ChunkMetadata `json:"metadata"`
}

type askOutput struct {
	Question   string          `json:"question"`
	Answer     string          `json:"answer"`
	HasContext bool            `json:"has_context"`
	Contexts   []contextOutput `json:"contexts"`
}

type statsOutput struct {
	State           string                  `json:"state"`
	DocumentCount   int                     `json:"document_count"`
	ChunkCount      int                     `json:"chunk_count"`
	Dimension       int                     `json:"dimension"`
	EmbeddingModel  string                  `json:"embedding_model"`
	GenerationModel string                  `json:"generation_model"`
	VectorDB        string                  `json:"vector_db"`
	IndexDir        string                  `json:"index_dir"`
	Documents       []domain.DocumentRecord `json:"documents,omitempty"`
}

func toContextOutput(contexts []rag.Context) []contextOutput {
	out := make([]contextOutput, len(contexts))
	for i, c := range contexts {
		out[i] = contextOutput{Content: c.Content, Score: c.Score, Metadata: c.Metadata}
	}
	return out
}

// printContexts writes one block per chunk. maxRunes > 0 truncates the content.
func printContexts(w io.Writer, contexts []rag.Context, maxRunes int) {
	for i, c := range contexts {
		content := c.Content
		if r := []rune(content); maxRunes > 0 && len(r) > maxRunes {
			content = string(r[:maxRunes]) + "…"
		}
		fmt.Fprintf(w, "[%d] %s (chunk %d/%d, score %.4f)\n%s\n\n",
			i+1, c.Metadata.Filename, c.Metadata.ChunkIndex+1, c.Metadata.TotalChunks, c.Score, content)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
