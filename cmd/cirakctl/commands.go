package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
	"github.com/kapu/cirak-widget-go/internal/service/conflict"
	"github.com/kapu/cirak-widget-go/internal/service/matcher"
	"github.com/kapu/cirak-widget-go/internal/service/snapshot"
	"github.com/kapu/cirak-widget-go/internal/service/store"
	"github.com/kapu/cirak-widget-go/internal/util"
)

var (
	errCriticalConflicts = errors.New("critical conflicts found")
	errKeyRejected       = errors.New("key rejected")
	errNeedsSQLStore     = errors.New("this command needs a SQL store (postgres or sqlite)")
)

// withSnapshot opens the workspace, builds one snapshot and hands it to fn.
func withSnapshot(opts *options, cmd *cobra.Command, fn func(*domain.Snapshot) error) error {
	ctx, cancel := opts.context(cmd)
	defer cancel()

	ws, err := opts.open(ctx)
	if err != nil {
		return err
	}
	defer ws.close()

	snap, err := ws.snapshot(ctx)
	if err != nil {
		return err
	}
	return fn(snap)
}

func newConflictsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts",
		Short: "List duplicated and shadowed keys; exits non-zero on critical conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSnapshot(opts, cmd, func(snap *domain.Snapshot) error {
				conflicts := conflict.NewDetector(nil).DetectConflicts(snap)
				critical := 0
				for _, c := range conflicts {
					if c.Severity == domain.SeverityCritical {
						critical++
					}
				}
				err := opts.emit(cmd.OutOrStdout(), conflicts, func(w io.Writer) {
					if len(conflicts) == 0 {
						fmt.Fprintln(w, "No conflicts.")
						return
					}
					for _, c := range conflicts {
						fmt.Fprintf(w, "[%s] %s %q: %s\n", c.Severity, c.Type, c.Key, c.Message)
					}
					fmt.Fprintf(w, "%d conflicts, %d critical\n", len(conflicts), critical)
				})
				if err != nil {
					return err
				}
				if critical > 0 {
					return errCriticalConflicts
				}
				return nil
			})
		},
	}
}

func newAnalyzeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze",
		Short: "Full intent analysis with per-intent quality scores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSnapshot(opts, cmd, func(snap *domain.Snapshot) error {
				report := conflict.NewDetector(nil).Analyze(snap)
				qualities := make([]domain.IntentQuality, 0, len(snap.Intents))
				for _, intent := range snap.Intents {
					qualities = append(qualities, conflict.QualityScore(intent))
				}

				out := struct {
					domain.AnalysisReport
					Quality []domain.IntentQuality `json:"quality"`
				}{report, qualities}

				return opts.emit(cmd.OutOrStdout(), out, func(w io.Writer) {
					s := report.Stats
					fmt.Fprintf(w, "Intents: %d  Keywords: %d\n", s.TotalIntents, s.TotalKeywords)
					fmt.Fprintf(w, "Critical: %d  Warnings: %d  Low: %d  Affected intents: %d\n",
						s.Critical, s.Warnings, s.Low, s.AffectedIntents)
					for _, q := range qualities {
						fmt.Fprintf(w, "  %-20s %3d/100\n", q.IntentID, q.Score)
						for _, suggestion := range q.Suggestions {
							fmt.Fprintf(w, "      - %s\n", suggestion)
						}
					}
				})
			})
		},
	}
}

func newNormalizationCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "normalization",
		Short: "List keywords whose stored normalized form is out of date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			ws, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer ws.close()

			// The builder recomputes normalized text, so check the values stored in the DB.
			// YAML carries no stored normalized text; check the built snapshot instead.
			var snap *domain.Snapshot
			if ws.repo != nil {
				content, err := ws.repo.Load(ctx)
				if err != nil {
					return err
				}
				snap = &domain.Snapshot{Intents: content.Intents}
			} else if snap, err = ws.snapshot(ctx); err != nil {
				return err
			}
			drift := conflict.VerifyNormalization(snap)
			return opts.emit(cmd.OutOrStdout(), drift, func(w io.Writer) {
				if len(drift) == 0 {
					fmt.Fprintln(w, "All keywords are normalized.")
					return
				}
				for _, d := range drift {
					fmt.Fprintf(w, "%s: %q stored as %q, expected %q\n", d.IntentID, d.Text, d.Stored, d.Expected)
				}
			})
		},
	}
}

func newTestCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "test <message>",
		Short: "Show how a message is matched",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return withSnapshot(opts, cmd, func(snap *domain.Snapshot) error {
				diag := matcher.NewMatcher(nil).TestMatch(message, snap)
				return opts.emit(cmd.OutOrStdout(), diag, func(w io.Writer) {
					fmt.Fprintf(w, "Input:      %s\n", diag.Input)
					fmt.Fprintf(w, "Normalized: %s\n", diag.NormalizedInput)
					if diag.Result.IsFallback {
						fmt.Fprintln(w, "Selected:   (fallback)")
					} else {
						fmt.Fprintf(w, "Selected:   %s (score %.1f)\n", diag.SelectedIntent, diag.Result.Score)
					}
					for _, c := range diag.TopCandidates {
						fmt.Fprintf(w, "  %-20s priority %d  score %.1f\n", c.IntentID, c.Priority, c.Score)
						for _, h := range c.Hits {
							fmt.Fprintf(w, "      %s via %q (%s) +%.1f\n", h.Keyword, h.MatchedTerm, h.MatchType, h.ScoreAdded)
						}
					}
					fmt.Fprintf(w, "Response:   %s\n", diag.Result.Message)
				})
			})
		},
	}
}

func newDeterminismCmd(opts *options) *cobra.Command {
	var iterations int
	cmd := &cobra.Command{
		Use:   "determinism <message>",
		Short: "Match a message repeatedly and report divergent results",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := strings.Join(args, " ")
			return withSnapshot(opts, cmd, func(snap *domain.Snapshot) error {
				report := matcher.NewMatcher(nil).CheckDeterminism(message, snap, iterations)
				if err := opts.emit(cmd.OutOrStdout(), report, func(w io.Writer) {
					fmt.Fprintf(w, "%d iterations, stable: %t, intent: %q\n", report.Iterations, report.Stable, report.First.IntentID)
				}); err != nil {
					return err
				}
				if !report.Stable {
					return fmt.Errorf("%d divergent results", len(report.Divergences))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&iterations, "iterations", "n", constants.AdminLimits.DefaultIterations, "Number of runs")
	return cmd
}

func newValidateKeyCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-key <intent-id> <key>",
		Short: "Check whether a new key would duplicate another intent's key",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			intentID, key := args[0], strings.Join(args[1:], " ")
			return withSnapshot(opts, cmd, func(snap *domain.Snapshot) error {
				found := conflict.NewDetector(nil).ValidateNewKey(key, intentID, snap)
				result := struct {
					Valid      bool             `json:"valid"`
					Normalized string           `json:"normalized"`
					Conflict   *domain.Conflict `json:"conflict,omitempty"`
				}{found == nil, util.Normalize(key), found}

				if err := opts.emit(cmd.OutOrStdout(), result, func(w io.Writer) {
					if found == nil {
						fmt.Fprintf(w, "OK: %q can be added to %s\n", result.Normalized, intentID)
						return
					}
					fmt.Fprintf(w, "Rejected: %s\n", found.Message)
				}); err != nil {
					return err
				}
				if found != nil {
					return errKeyRejected
				}
				return nil
			})
		},
	}
}

func newImportCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <dir>",
		Short: "Validate a YAML intent directory and write it into the SQL store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()

			// --dir is a read-only source, never an import target
			if opts.intentsDir != "" {
				return errNeedsSQLStore
			}
			ws, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer ws.close()
			if ws.repo == nil {
				return errNeedsSQLStore
			}

			files := store.NewFileSource(args[0], ws.logger)
			content, err := files.Load(ctx)
			if err != nil {
				return err
			}
			built, err := snapshot.NewBuilder(files, ws.logger).FromContent(content)
			if err != nil {
				return err
			}
			if err := ws.repo.ImportContent(ctx, content); err != nil {
				return err
			}

			meta := built.Metadata()
			return opts.emit(cmd.OutOrStdout(), meta, func(w io.Writer) {
				fmt.Fprintf(w, "Imported %d active intents, %d keywords, %d fallbacks (fingerprint %s)\n",
					meta.IntentCount, meta.KeywordCount, meta.FallbackCount, shortFingerprint(meta.Fingerprint))
			})
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently installed snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := opts.context(cmd)
			defer cancel()
			ws, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer ws.close()
			if ws.repo == nil {
				return errNeedsSQLStore
			}

			history, err := ws.repo.SnapshotHistory(ctx, limit)
			if err != nil {
				return err
			}
			return opts.emit(cmd.OutOrStdout(), history, func(w io.Writer) {
				if len(history) == 0 {
					fmt.Fprintln(w, "No snapshots recorded.")
					return
				}
				for _, m := range history {
					fmt.Fprintf(w, "#%-5d %s  %s  intents=%d keywords=%d\n",
						m.Sequence, util.FormatLocal(m.GeneratedAt, "2006-01-02 15:04:05"),
						shortFingerprint(m.Fingerprint), m.IntentCount, m.KeywordCount)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", constants.SnapshotConfig.HistoryLimit, "Maximum entries")
	return cmd
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
