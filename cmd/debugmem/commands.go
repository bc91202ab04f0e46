package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/debugmem/internal/incident"
	"github.com/fyrsmithlabs/debugmem/internal/logging"
	"github.com/fyrsmithlabs/debugmem/internal/memory"
	"github.com/fyrsmithlabs/debugmem/internal/patterns"
	"github.com/fyrsmithlabs/debugmem/internal/search"
)

// maxInputSize bounds incident and aggregate documents read from files or stdin.
const maxInputSize = 2 << 20

// withApp opens the application, runs fn and closes it, joining close
// errors into the result.
func withApp(cmd *cobra.Command, flags *rootFlags, daemon bool, fn func(context.Context, *app) error) (err error) {
	a, err := openApp(cmd.Context(), flags, daemon)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(cmd.Context()); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(a.context(cmd.Context(), flags), a)
}

// searchFlags are the retrieval overrides shared by search, check and
// patterns match. Unset flags keep the configured default.
type searchFlags struct {
	threshold  float64
	maxResults int
}

func (f *searchFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "minimum score between 0 and 1 (default from config)")
	cmd.Flags().IntVarP(&f.maxResults, "max-results", "n", 0, "maximum results (default from config)")
}

func (f *searchFlags) options(cmd *cobra.Command) (search.Options, error) {
	if f.maxResults < 0 {
		return search.Options{}, fmt.Errorf("--max-results must not be negative")
	}
	opts := search.Options{MaxResults: f.maxResults}
	if cmd.Flags().Changed("threshold") {
		if f.threshold < 0 || f.threshold > 1 {
			return search.Options{}, fmt.Errorf("--threshold must be between 0 and 1, got %v", f.threshold)
		}
		opts.Threshold = search.Threshold(f.threshold)
	}
	return opts, nil
}

func queryArg(args []string) (string, error) {
	q := strings.TrimSpace(strings.Join(args, " "))
	if q == "" {
		return "", errors.New("query must not be empty")
	}
	return q, nil
}

func newSearchCmd(flags *rootFlags) *cobra.Command {
	sf := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search incidents with every strategy in parallel",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := queryArg(args)
			if err != nil {
				return err
			}
			opts, err := sf.options(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, flags, false, func(ctx context.Context, a *app) error {
				res, err := a.svc.Search(ctx, q, opts)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), flags.format, res, renderSearch)
			})
		},
	}
	sf.register(cmd)
	return cmd
}

func newCheckCmd(flags *rootFlags) *cobra.Command {
	sf := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "check <query>",
		Short: "Consult patterns first, then incidents",
		Long: `check answers "have we seen this before?".

Known patterns are returned when any match; otherwise similar incidents are
searched.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := queryArg(args)
			if err != nil {
				return err
			}
			opts, err := sf.options(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, flags, false, func(ctx context.Context, a *app) error {
				res, err := a.svc.CheckMemory(ctx, q, opts)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), flags.format, res, renderCheck)
			})
		},
	}
	sf.register(cmd)
	return cmd
}

func newPatternsCmd(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Match and extract patterns",
	}
	cmd.AddCommand(newPatternsMatchCmd(flags), newPatternsExtractCmd(flags))
	return cmd
}

func newPatternsMatchCmd(flags *rootFlags) *cobra.Command {
	sf := &searchFlags{}
	cmd := &cobra.Command{
		Use:   "match <query>",
		Short: "Match a query against stored patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := queryArg(args)
			if err != nil {
				return err
			}
			opts, err := sf.options(cmd)
			if err != nil {
				return err
			}
			return withApp(cmd, flags, false, func(ctx context.Context, a *app) error {
				res, err := a.svc.MatchPatterns(ctx, q, opts)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), flags.format, res, renderPatternMatches)
			})
		},
	}
	sf.register(cmd)
	return cmd
}

func newPatternsExtractCmd(flags *rootFlags) *cobra.Command {
	var opts patterns.ExtractOptions
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Mine recurring incidents into patterns",
		Long: `extract clusters unpatternized incidents by root-cause category and
synthesizes a pattern for every cluster that is large and similar enough.

Without --store it is a dry run: candidate patterns are printed and nothing
is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.MinIncidents < 0 {
				return errors.New("--min-incidents must not be negative")
			}
			if opts.MinSimilarity < 0 || opts.MinSimilarity > 1 {
				return fmt.Errorf("--min-similarity must be between 0 and 1, got %v", opts.MinSimilarity)
			}
			return withApp(cmd, flags, false, func(ctx context.Context, a *app) error {
				res, err := a.svc.ExtractPatterns(ctx, opts)
				if err != nil && !errors.Is(err, patterns.ErrPartialTagging) {
					return err
				}
				if err != nil {
					logging.FromContext(ctx).Warn(ctx, "patterns stored with untagged sources", zap.Error(err))
				}
				if rerr := emit(cmd.OutOrStdout(), flags.format, res, renderExtract); rerr != nil {
					return rerr
				}
				return err
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.MinIncidents, "min-incidents", 0, "minimum cluster size (default from config)")
	f.Float64Var(&opts.MinSimilarity, "min-similarity", 0, "minimum cluster similarity (default from config)")
	f.BoolVar(&opts.AutoStore, "store", false, "persist patterns and tag their source incidents")
	return cmd
}

func newStoreCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "store <file|->",
		Short: "Store an incident read from a JSON file or stdin",
		Long: `store validates and persists one incident, assigning an id when the
document has none. When auto extraction is enabled, storing the incident
that completes a cluster creates a pattern.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var inc incident.Incident
			if err := readJSON(cmd.InOrStdin(), args[0], &inc); err != nil {
				return err
			}
			if inc.Agent == "" {
				inc.Agent = flags.agent
			}
			return withApp(cmd, flags, false, func(ctx context.Context, a *app) error {
				res, err := a.svc.StoreIncident(ctx, &inc)
				if err != nil {
					return err
				}
				if res.Warning != "" {
					logging.FromContext(ctx).Warn(ctx, "incident stored without auto extraction",
						zap.String("id", res.Incident.ID), zap.String("reason", res.Warning))
				}
				return emit(cmd.OutOrStdout(), flags.format, res, renderStore)
			})
		},
	}
}

func newStatsCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize stored incidents and patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, flags, false, func(ctx context.Context, a *app) error {
				st, err := a.svc.Stats(ctx)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), flags.format, st, renderStats)
			})
		},
	}
}

func newAggregateCmd(flags *rootFlags) *cobra.Command {
	var query string
	cmd := &cobra.Command{
		Use:   "aggregate [file|-]",
		Short: "Rank and deduplicate findings into one summary",
		Long: `aggregate merges assessments, incidents and patterns from a JSON
document into a ranked, deduplicated list with an overall confidence.

With --query, memory is searched and the matches join the inputs. The
document may be omitted when --query is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &memory.AggregateRequest{}
			if len(args) == 1 {
				if err := readJSON(cmd.InOrStdin(), args[0], req); err != nil {
					return err
				}
			} else if query == "" {
				return errors.New("an input document or --query is required")
			}
			if query != "" {
				req.Query = query
			}
			return withApp(cmd, flags, false, func(ctx context.Context, a *app) error {
				res, err := a.svc.Aggregate(ctx, req)
				if err != nil {
					return err
				}
				return emit(cmd.OutOrStdout(), flags.format, res, renderAggregate)
			})
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "search memory and aggregate the matches too")
	return cmd
}

// readJSON decodes the document at path, or stdin when path is "-".
func readJSON(stdin io.Reader, path string, v any) error {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxInputSize+1))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) > maxInputSize {
		return fmt.Errorf("%s is larger than %d bytes", path, maxInputSize)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}
