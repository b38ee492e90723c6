// Package cmd provides command-line interface commands for Argus.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"argus/bootstrap"
	"argus/config"
	"argus/core"
	"argus/detect"
	"argus/feedback"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

const defaultTimeout = time.Minute

type rulesOptions struct {
	configFile string
	outputJSON bool
	noColor    bool
}

// NewRulesCmd creates the rules command: offline validation of the rules
// directory and review of learned candidate rules.
func NewRulesCmd() *cobra.Command {
	opts := &rulesOptions{}

	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Validate detection rules and review learned candidates",
		Long: `Validate detection rules and review learned candidates.

Rules learned from confirmed alerts are written to the pending store and only
become active once approved. Approved rules are loaded on the next start.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				color.NoColor = true
			}
		},
	}

	rulesCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file path (default: ./config.yaml or ./config/config.yaml)")
	rulesCmd.PersistentFlags().BoolVar(&opts.outputJSON, "json", false, "Output in JSON format")
	rulesCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")

	rulesCmd.AddCommand(newValidateCmd(opts))
	rulesCmd.AddCommand(newPendingCmd(opts))
	rulesCmd.AddCommand(newReviewCmd(opts, "approve", "Approve pending rules and move them into the rules directory",
		func(s feedback.LifecycleStore) reviewFunc { return s.Approve }))
	rulesCmd.AddCommand(newReviewCmd(opts, "reject", "Reject pending rules",
		func(s feedback.LifecycleStore) reviewFunc { return s.Reject }))

	return rulesCmd
}

func newValidateCmd(opts *rulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Check every rule file in a directory",
		Long:  "Parse and validate every rule file without starting the service. Exits non-zero if any document is skipped.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var dir string
			if len(args) == 1 {
				dir = args[0]
			} else {
				cfg, err := config.LoadConfig(opts.configFile)
				if err != nil {
					return err
				}
				dir = cfg.Rules.Dir
			}

			report, err := detect.ScanRules(dir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.outputJSON {
				if err := writeJSON(out, validationOutput(report)); err != nil {
					return err
				}
			} else {
				renderLoadReport(out, report)
			}
			if len(report.Skipped) > 0 {
				return fmt.Errorf("%d rule document(s) failed validation", len(report.Skipped))
			}
			return nil
		},
	}
}

func newPendingCmd(opts *rulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "pending",
		Aliases: []string{"ls"},
		Short:   "List candidate rules awaiting review",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			rules, err := store.Pending(ctx)
			if err != nil {
				return fmt.Errorf("failed to list pending rules: %w", err)
			}

			out := cmd.OutOrStdout()
			if opts.outputJSON {
				docs := make([]core.RuleDocument, 0, len(rules))
				for _, r := range rules {
					docs = append(docs, r.ToDocument())
				}
				return writeJSON(out, docs)
			}
			renderPendingTable(out, rules)
			return nil
		},
	}
}

type reviewFunc func(ctx context.Context, id string) (bool, error)

func newReviewCmd(opts *rulesOptions, verb, short string, pick func(feedback.LifecycleStore) reviewFunc) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <rule-id>...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), defaultTimeout)
			defer cancel()

			store, cleanup, err := openStore(opts)
			if err != nil {
				return err
			}
			defer cleanup()

			review := pick(store)
			out := cmd.OutOrStdout()
			missing := 0
			for _, id := range args {
				ok, err := review(ctx, id)
				if err != nil {
					return fmt.Errorf("failed to %s %s: %w", verb, id, err)
				}
				if !ok {
					warningColor.Fprintf(out, "Not pending: %s\n", id)
					missing++
					continue
				}
				successColor.Fprintf(out, "%s: %s\n", pastTense(verb), id)
			}
			if missing > 0 {
				return fmt.Errorf("%d rule(s) not found in the pending store", missing)
			}
			return nil
		},
	}
}

// openStore loads configuration and opens the configured review store with
// a logger that only reports problems
func openStore(opts *rulesOptions) (feedback.LifecycleStore, func(), error) {
	cfg, err := config.LoadConfig(opts.configFile)
	if err != nil {
		return nil, nil, err
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	logger, err := logCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	sugar := logger.Sugar()

	if err := bootstrap.EnsureDirectories(feedbackDirectories(cfg), sugar); err != nil {
		return nil, nil, err
	}
	store, err := bootstrap.InitFeedbackStore(cfg, sugar)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		if err := store.Close(); err != nil {
			errorColor.Fprintf(color.Error, "Failed to close rule store: %v\n", err)
		}
		_ = logger.Sync()
	}
	return store, cleanup, nil
}

func feedbackDirectories(cfg *config.Config) []string {
	dirs := []string{cfg.Rules.Dir}
	if cfg.Feedback.Backend == config.FeedbackBackendSQLite {
		return append(dirs, filepath.Dir(cfg.Feedback.SQLitePath))
	}
	return append(dirs, cfg.Feedback.PendingDir, cfg.Feedback.RejectedDir)
}

func pastTense(verb string) string {
	switch verb {
	case "approve":
		return "Approved"
	case "reject":
		return "Rejected"
	default:
		return verb
	}
}

func writeJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
