package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/cam3ron2/branchscope/internal/app"
	"github.com/cam3ron2/branchscope/internal/dashboard"
	"github.com/cam3ron2/branchscope/internal/githubapi"
	"github.com/cam3ron2/branchscope/internal/output"
	"github.com/cam3ron2/branchscope/internal/projectstate"
	"github.com/cam3ron2/branchscope/internal/report"
	"github.com/spf13/cobra"
)

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "branchscope",
		Short: "Branch analytics for GitHub repositories",
		Long: `branchscope collects a GitHub branch's unique commits, authors, issues,
pull requests and files, scores its health, and keeps a per-branch project
timeline with commit annotations.

Repositories are named by URL, e.g. https://github.com/owner/repo/tree/feature/login.
Without /tree/<branch> the default branch is used.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			opts.applyColor()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to YAML config file (defaults apply when empty)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.BoolVar(&opts.json, "json", false, "Output as JSON")

	root.AddCommand(
		newServeCommand(opts),
		newDashboardCommand(opts),
		newAuthorsCommand(opts),
		newTimelineCommand(opts),
		newStateCommand(opts),
		newReportCommand(opts),
		newRateLimitCommand(opts),
	)
	return root
}

// parseTarget reads a repository URL. A non-empty branch overrides the URL's.
func parseTarget(raw, branch string) (dashboard.Target, error) {
	owner, repo, urlBranch, err := githubapi.ParseRepoURL(raw)
	if err != nil {
		return dashboard.Target{}, err
	}
	if strings.TrimSpace(branch) != "" {
		urlBranch = strings.TrimSpace(branch)
	}
	return dashboard.Target{Owner: owner, Repo: repo, Branch: urlBranch}, nil
}

// withSession opens a session for the duration of fn.
func (o *rootOptions) withSession(cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := o.open(ctx, false)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API, metrics and health probes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			s, err := opts.open(ctx, true)
			if err != nil {
				return err
			}
			defer s.Close()
			return app.NewRuntime(s.services).Run(ctx)
		},
	}
}

func newDashboardCommand(opts *rootOptions) *cobra.Command {
	var branch string
	var refresh bool
	cmd := &cobra.Command{
		Use:   "dashboard <repo-url>",
		Short: "Summarize a branch: repository, health, strategy and authors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0], branch)
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				collect := s.services.Collector.Collect
				if refresh {
					collect = s.services.Collector.Refresh
				}
				d, err := collect(ctx, target)
				if err != nil {
					return err
				}
				if opts.json {
					return output.JSON(opts.stdout, d)
				}
				return output.Dashboard(opts.stdout, d)
			})
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "Branch to analyze (overrides the URL)")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Drop cached responses before collecting")
	return cmd
}

func newAuthorsCommand(opts *rootOptions) *cobra.Command {
	var branch, author string
	cmd := &cobra.Command{
		Use:   "authors <repo-url>",
		Short: "List branch authors, or enrich one author's commits with --author",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0], branch)
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				if strings.TrimSpace(author) == "" {
					d, err := s.services.Collector.Collect(ctx, target)
					if err != nil {
						return err
					}
					if opts.json {
						return output.JSON(opts.stdout, d.Authors)
					}
					return output.Authors(opts.stdout, d.Authors)
				}

				result, err := s.services.AnalyzeAuthor(ctx, target, author, output.Progress(opts.stderr, "Enriching commits"))
				if err != nil {
					return err
				}
				if opts.json {
					return output.JSON(opts.stdout, result.Analysis)
				}
				return output.Analysis(opts.stdout, result.Analysis)
			})
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "Branch to analyze (overrides the URL)")
	cmd.Flags().StringVar(&author, "author", "", "Author login or name to enrich")
	return cmd
}

func newTimelineCommand(opts *rootOptions) *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "timeline <repo-url>",
		Short: "Show annotated commits and Gantt tasks for a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0], branch)
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				timeline, err := s.services.Timeline(ctx, target)
				if err != nil {
					return err
				}
				if opts.json {
					return output.JSON(opts.stdout, timeline)
				}
				return output.Timeline(opts.stdout, timeline.Commits, timeline.Tasks, timeline.Orphans)
			})
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "", "Branch (overrides the URL)")
	return cmd
}

// stateKey requires an explicit branch, since project records are per branch.
func stateKey(raw, branch string) (string, error) {
	target, err := parseTarget(raw, branch)
	if err != nil {
		return "", err
	}
	if target.Branch == "" {
		return "", errors.New("branch is required: use a /tree/<branch> URL or --branch")
	}
	return target.StateKey(), nil
}

type stateSetFlags struct {
	start, end      string
	extend          []string
	clearExtensions bool
	tags, descs     []string
}

func (f stateSetFlags) update() (app.ProjectUpdate, error) {
	var update app.ProjectUpdate
	if f.start != "" {
		start, err := projectstate.ParseDate(f.start)
		if err != nil {
			return update, err
		}
		update.Start = &start
	}
	if f.end != "" {
		end, err := projectstate.ParseDate(f.end)
		if err != nil {
			return update, err
		}
		update.End = &end
	}
	update.ClearExtensions = f.clearExtensions
	for _, raw := range f.extend {
		ext, err := projectstate.ParseDate(raw)
		if err != nil {
			return update, err
		}
		update.Extend = append(update.Extend, ext)
	}
	var err error
	if update.Tags, err = parseAssignments("--tag", f.tags); err != nil {
		return update, err
	}
	if update.Descs, err = parseAssignments("--desc", f.descs); err != nil {
		return update, err
	}
	return update, nil
}

// parseAssignments parses repeated sha=value flags.
func parseAssignments(flag string, values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make(map[string]string, len(values))
	for _, raw := range values {
		sha, value, ok := strings.Cut(raw, "=")
		sha = strings.TrimSpace(sha)
		if !ok || sha == "" {
			return nil, fmt.Errorf("%s %q: expected sha=value", flag, raw)
		}
		out[sha] = strings.TrimSpace(value)
	}
	return out, nil
}

func newStateCommand(opts *rootOptions) *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect and edit per-branch project records",
	}
	cmd.PersistentFlags().StringVar(&branch, "branch", "", "Branch (overrides the URL)")

	get := &cobra.Command{
		Use:   "get <repo-url>",
		Short: "Print the project record for a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := stateKey(args[0], branch)
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				record, _ := s.services.State.Load(ctx, key)
				if opts.json {
					return output.JSON(opts.stdout, record)
				}
				return output.Record(opts.stdout, key, record)
			})
		},
	}

	var setFlags stateSetFlags
	set := &cobra.Command{
		Use:   "set <repo-url>",
		Short: "Update the project window, extensions and commit annotations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := stateKey(args[0], branch)
			if err != nil {
				return err
			}
			update, err := setFlags.update()
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				record, err := s.services.UpdateProject(ctx, key, update)
				if err != nil {
					return err
				}
				if opts.json {
					return output.JSON(opts.stdout, record)
				}
				return output.Record(opts.stdout, key, record)
			})
		},
	}
	set.Flags().StringVar(&setFlags.start, "start", "", "Project start date (YYYY-MM-DD)")
	set.Flags().StringVar(&setFlags.end, "end", "", "Project end date (YYYY-MM-DD)")
	set.Flags().StringArrayVar(&setFlags.extend, "extend", nil, "Add a deadline extension date (repeatable)")
	set.Flags().BoolVar(&setFlags.clearExtensions, "clear-extensions", false, "Remove existing extensions first")
	set.Flags().StringArrayVar(&setFlags.tags, "tag", nil, "Annotate a commit: <full-sha>=<Tag> (repeatable)")
	set.Flags().StringArrayVar(&setFlags.descs, "desc", nil, "Describe a commit: <full-sha>=<text> (repeatable)")

	del := &cobra.Command{
		Use:   "delete <repo-url>",
		Short: "Delete the project record for a branch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := stateKey(args[0], branch)
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				if err := s.services.State.Delete(ctx, key); err != nil {
					return err
				}
				_, err := fmt.Fprintf(opts.stdout, "deleted %s\n", key)
				return err
			})
		},
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List stored project record keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				keys, err := s.services.State.Keys(ctx)
				if err != nil {
					return err
				}
				sort.Strings(keys)
				if opts.json {
					return output.JSON(opts.stdout, keys)
				}
				for _, key := range keys {
					if _, err := fmt.Fprintln(opts.stdout, key); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.AddCommand(get, set, del, list)
	return cmd
}

func newReportCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write compliance and contributor reports",
	}

	var complianceBranch, complianceOut string
	var sections []string
	compliance := &cobra.Command{
		Use:   "compliance <repo-url>",
		Short: "Write the ISO 27001 evidence report as HTML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0], complianceBranch)
			if err != nil {
				return err
			}
			selected, err := report.ParseSections(sections)
			if err != nil {
				return err
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				d, err := s.services.Collector.Collect(ctx, target)
				if err != nil {
					return err
				}
				now := s.services.Now()
				body, err := report.Compliance(d, selected, now)
				if err != nil {
					return err
				}
				path := complianceOut
				if path == "" {
					path = report.ComplianceFilename(d.Target, now)
				}
				return writeReport(opts.stdout, path, body)
			})
		},
	}
	compliance.Flags().StringVar(&complianceBranch, "branch", "", "Branch (overrides the URL)")
	compliance.Flags().StringVarP(&complianceOut, "output", "o", "", "Output file (default ISO27001_<repo>_<branch>_<date>.html)")
	compliance.Flags().StringArrayVar(&sections, "section", nil, "Section to include, e.g. A.8 or audit (repeatable)")

	var contributorBranch, contributorOut, author string
	contributor := &cobra.Command{
		Use:   "contributor <repo-url>",
		Short: "Write one author's contribution workbook as XLSX",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(args[0], contributorBranch)
			if err != nil {
				return err
			}
			if strings.TrimSpace(author) == "" {
				return errors.New("--author is required")
			}
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				result, err := s.services.AnalyzeAuthor(ctx, target, author, output.Progress(opts.stderr, "Enriching commits"))
				if err != nil {
					return err
				}
				book, err := report.ContributorWorkbook(result.Dashboard.Target, result.Rollup, result.Analysis)
				if err != nil {
					return err
				}
				defer func() {
					_ = book.Close()
				}()
				path := contributorOut
				if path == "" {
					path = report.ContributorFilename(result.Dashboard.Target, author, s.services.Now())
				}
				if err := book.SaveAs(path); err != nil {
					return fmt.Errorf("write %s: %w", path, err)
				}
				_, err = fmt.Fprintf(opts.stdout, "wrote %s\n", path)
				return err
			})
		},
	}
	contributor.Flags().StringVar(&contributorBranch, "branch", "", "Branch (overrides the URL)")
	contributor.Flags().StringVar(&author, "author", "", "Author login or name")
	contributor.Flags().StringVarP(&contributorOut, "output", "o", "", "Output file (default Contributor_<repo>_<branch>_<author>_<date>.xlsx)")

	cmd.AddCommand(compliance, contributor)
	return cmd
}

func writeReport(stdout io.Writer, path string, body []byte) error {
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	_, err := fmt.Fprintf(stdout, "wrote %s\n", path)
	return err
}

func newRateLimitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ratelimit",
		Short: "Show the GitHub API rate-limit budgets for the resolved credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withSession(cmd, func(ctx context.Context, s *session) error {
				limits, err := s.services.REST.RateLimits(ctx)
				if err != nil {
					return err
				}
				if opts.json {
					return output.JSON(opts.stdout, limits)
				}
				if s.services.AuthSource == "" {
					if _, err := fmt.Fprintln(opts.stdout, "credentials: none (unauthenticated)"); err != nil {
						return err
					}
				} else if _, err := fmt.Fprintf(opts.stdout, "credentials: %s\n", s.services.AuthSource); err != nil {
					return err
				}
				return output.RateLimits(opts.stdout, limits, s.services.Now())
			})
		},
	}
}
