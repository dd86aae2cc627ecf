package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/docmentor/docmentor/internal/agent"
	"github.com/docmentor/docmentor/internal/api"
	"github.com/docmentor/docmentor/internal/config"
	"github.com/docmentor/docmentor/internal/domain"
	"github.com/docmentor/docmentor/internal/llm"
	"github.com/docmentor/docmentor/internal/tui"
)

var (
	paths      []string
	topK       int
	servePort  int
	ingestRoot string
	jsonOutput bool
	stream     bool
	askMode    string
	initForce  bool
)

// serveCmd starts the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the DocMentor API server",
	Long: `Start the HTTP API. Documents given with --path are ingested before the
server starts accepting requests; more can be added through the API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		if servePort > 0 {
			cfg.Server.Port = servePort
		}
		if ingestRoot != "" {
			cfg.Server.IngestRoot = ingestRoot
		}

		a, err := buildApp(cfg, logger)
		if err != nil {
			return err
		}
		if len(paths) > 0 {
			report, err := a.ingest(cmd.Context(), paths)
			if err != nil {
				return err
			}
			printReport(cmd.ErrOrStderr(), report)
		}

		chat, err := llm.NewChatClient(cfg)
		if err != nil {
			return err
		}
		srv, err := api.NewServer(cfg, a.pipeline, chat, logger)
		if err != nil {
			return err
		}
		return srv.Run(cmd.Context())
	},
}

// searchCmd runs a one-shot retrieval
var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the documents under --path",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := prepare(cmd)
		if err != nil {
			return err
		}

		query := strings.Join(args, " ")
		results, err := a.pipeline.SearchRelatedChunks(cmd.Context(), query, topK)
		if err != nil {
			return userError(err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(results)
		}
		printResults(out, results)
		return nil
	},
}

// askCmd answers a question from the documents under --path
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question from the documents under --path",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := prepare(cmd)
		if err != nil {
			return err
		}

		chat, err := llm.NewChatClient(a.cfg)
		if err != nil {
			return err
		}
		generator := a.cfg.Generator
		if askMode != "" {
			generator.Mode = askMode
		}
		ragAgent, err := agent.NewRAGAgent(a.pipeline, chat, generator, agent.WithLogger(a.logger))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		question := strings.Join(args, " ")

		if stream {
			sources, err := ragAgent.AskStream(cmd.Context(), question, topK, func(content string, done bool) error {
				_, err := io.WriteString(out, content)
				return err
			})
			if err != nil {
				return userError(err)
			}
			fmt.Fprintln(out)
			printSources(out, sources)
			return nil
		}

		answer, err := ragAgent.Ask(cmd.Context(), question, topK)
		if err != nil {
			return userError(err)
		}
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(answer)
		}
		fmt.Fprintln(out, answer.Text)
		printSources(out, answer.Sources)
		return nil
	},
}

// tuiCmd opens the interactive search screen
var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Search and ask interactively in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := prepare(cmd)
		if err != nil {
			return err
		}

		var asker tui.Asker
		if chat, err := llm.NewChatClient(a.cfg); err == nil {
			if ragAgent, err := agent.NewRAGAgent(a.pipeline, chat, a.cfg.Generator, agent.WithLogger(a.logger)); err == nil {
				asker = ragAgent
			}
		}
		return tui.Run(cmd.Context(), a.pipeline, asker, topK, a.summary())
	},
}

// configCmd groups configuration helpers
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.DefaultPath()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !initForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}

		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Save(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		shown := *cfg
		if shown.OpenAI.APIKey != "" {
			shown.OpenAI.APIKey = "****"
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(&shown)
	},
}

func init() {
	for _, c := range []*cobra.Command{serveCmd, searchCmd, askCmd, tuiCmd} {
		c.Flags().StringSliceVarP(&paths, "path", "p", nil, "file or directory to ingest (repeatable)")
	}
	for _, c := range []*cobra.Command{searchCmd, askCmd, tuiCmd} {
		c.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	}
	searchCmd.Flags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
	askCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the answer as JSON")
	askCmd.Flags().BoolVarP(&stream, "stream", "s", false, "stream the answer as it is generated")
	askCmd.Flags().StringVar(&askMode, "mode", "", "generator mode: qa or chat")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config)")
	serveCmd.Flags().StringVar(&ingestRoot, "ingest-root", "", "directory the API may ingest files from (path ingestion is off without it)")
	configInitCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

// prepare loads config, wires the app and ingests --path
func prepare(cmd *cobra.Command) (*app, error) {
	if len(paths) == 0 {
		return nil, errors.New("at least one --path is required")
	}
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	a, err := buildApp(cfg, logger)
	if err != nil {
		return nil, err
	}
	report, err := a.ingest(cmd.Context(), paths)
	if err != nil {
		return nil, err
	}
	printReport(cmd.ErrOrStderr(), report)
	if report.Loaded == 0 {
		return nil, errors.New("no documents were ingested")
	}
	return a, nil
}

// userError reduces err to its kind and message for terminal output
func userError(err error) error {
	kind := domain.KindOf(err)
	if kind == "ConsistencyViolation" {
		return fmt.Errorf("%s: internal state error, see logs", kind)
	}
	return fmt.Errorf("%s: %v", kind, err)
}

func printReport(w io.Writer, r *ingestReport) {
	fmt.Fprintf(w, "Ingested %d documents", r.Loaded)
	if len(r.Skipped) > 0 {
		fmt.Fprintf(w, ", skipped %d files", len(r.Skipped))
	}
	if len(r.Failed) > 0 {
		fmt.Fprintf(w, ", %d failed", len(r.Failed))
	}
	fmt.Fprintln(w)
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed: %s\n", f)
	}
}

func printResults(w io.Writer, results []domain.RelatedChunk) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tDISTANCE\tDOCUMENT\tCHUNK\tTEXT")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%.4f\t%s\t%d\t%s\n", i+1, r.Distance, filepath.Base(r.DocumentID), r.Position, preview(r.Text, 60))
	}
	tw.Flush()
}

func printSources(w io.Writer, sources []domain.RelatedChunk) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, "\nSources:")
	for _, s := range sources {
		fmt.Fprintf(w, "  - %s #%d (%.4f)\n", s.DocumentID, s.Position, s.Distance)
	}
}

// preview shortens text to n runes on one line
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	r := []rune(text)
	if len(r) <= n {
		return text
	}
	return string(r[:n-1]) + "…"
}
