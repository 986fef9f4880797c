package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pders01/ntrack/internal/api"
	"github.com/pders01/ntrack/internal/debuglog"
	"github.com/pders01/ntrack/internal/engine"
	"github.com/pders01/ntrack/internal/tracker"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	var (
		addr  string
		quiet bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the refresh scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c.logToStderr = true
			cfg, err := c.load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return c.withApp(ctx, func(a *app) error {
				if !quiet {
					fmt.Fprintln(cmd.OutOrStdout(), renderBanner("listening on http://"+cfg.Server.Addr))
				}
				return serve(ctx, a)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Skip startup banner")
	return cmd
}

// serve blocks until ctx is done or the listener fails, then drains the
// server and lets a running batch finish.
func serve(ctx context.Context, a *app) error {
	srv := api.NewServer(a.cfg.Server, api.NewRouter(a.manager, a.scheduler, a.cfg.Server))

	a.scheduler.Start(ctx)
	defer func() {
		a.scheduler.Stop()
		a.scheduler.Wait()
	}()

	errCh := make(chan error, 1)
	go func() {
		debuglog.Infof("listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	debuglog.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newAddCmd(c *cli) *cobra.Command {
	var req engine.AddRequest
	cmd := &cobra.Command{
		Use:   "add <source>",
		Short: "Track a URL, repository, coin, ticker, city or JSON endpoint",
		Example: `  ntrack add https://go.dev/blog/feed.atom
  ntrack add https://github.com/golang/go --interval 30m
  ntrack add btc
  ntrack add https://api.example.com/status.json --title-key name --feed-key status`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Source = args[0]
			return c.withApp(cmd.Context(), func(a *app) error {
				t, err := a.manager.AddTracker(cmd.Context(), req)
				if errors.Is(err, engine.ErrNeedsConfiguration) {
					return fmt.Errorf("%w: run `ntrack keys %s` and pass --title-key/--feed-key", err, args[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Added"))
				writeTracker(cmd.OutOrStdout(), t, time.Now())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.Title, "title", "", "Display title")
	cmd.Flags().StringVar(&req.TitleKey, "title-key", "", "JSON path used as the title")
	cmd.Flags().StringVar(&req.FeedKey, "feed-key", "", "JSON path used as the content")
	cmd.Flags().DurationVar(&req.UpdateInterval, "interval", 0, "Update interval (default from config)")
	cmd.Flags().IntVar(&req.DailyLimit, "limit", 0, "Daily request limit (default from config)")
	return cmd
}

func newListCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List trackers",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				writeTrackers(cmd.OutOrStdout(), a.manager.List(), time.Now())
				return nil
			})
		},
	}
}

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one tracker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				t, err := resolveTracker(a, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				writeTracker(out, t, time.Now())
				fmt.Fprintln(out, mutedStyle.Render("  id:     "+t.ID))
				fmt.Fprintln(out, mutedStyle.Render("  source: "+t.Source))
				if link := t.Link(); link != "" {
					fmt.Fprintln(out, mutedStyle.Render("  link:   "+link))
				}
				return nil
			})
		},
	}
}

func newEditCmd(c *cli) *cobra.Command {
	var (
		source, title, titleKey, feedKey string
		interval                         time.Duration
		limit                            int
	)
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change a tracker's source, title or limits",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var req engine.EditRequest
			if flags.Changed("source") {
				req.Source = &source
			}
			if flags.Changed("title") {
				req.Title = &title
			}
			if flags.Changed("title-key") {
				req.TitleKey = &titleKey
			}
			if flags.Changed("feed-key") {
				req.FeedKey = &feedKey
			}
			if flags.Changed("interval") {
				req.UpdateInterval = &interval
			}
			if flags.Changed("limit") {
				req.DailyLimit = &limit
			}

			return c.withApp(cmd.Context(), func(a *app) error {
				t, err := resolveTracker(a, args[0])
				if err != nil {
					return err
				}
				t, err = a.manager.EditTracker(cmd.Context(), t.ID, req)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render("Updated"))
				writeTracker(cmd.OutOrStdout(), t, time.Now())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "New source")
	cmd.Flags().StringVar(&title, "title", "", "Display title")
	cmd.Flags().StringVar(&titleKey, "title-key", "", "JSON path used as the title")
	cmd.Flags().StringVar(&feedKey, "feed-key", "", "JSON path used as the content")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Update interval")
	cmd.Flags().IntVar(&limit, "limit", 0, "Daily request limit")
	return cmd
}

func newRemoveCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a tracker",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				t, err := resolveTracker(a, args[0])
				if err != nil {
					return err
				}
				if err := a.manager.DeleteTracker(cmd.Context(), t.ID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", t.DisplayTitle())
				return nil
			})
		},
	}
}

func newRefreshCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh [id]",
		Short: "Refresh one tracker now, or run a batch over all due trackers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				out := cmd.OutOrStdout()
				if len(args) == 0 {
					report, err := a.scheduler.RunOnce(cmd.Context())
					if err != nil {
						return err
					}
					writeReport(out, report)
					return nil
				}

				t, err := resolveTracker(a, args[0])
				if err != nil {
					return err
				}
				outcome, err := a.manager.UpdateTracker(cmd.Context(), t.ID)
				if err != nil {
					return err
				}
				writeOutcome(out, outcome, time.Now())
				return nil
			})
		},
	}
}

func newClassifyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <input>",
		Short: "Show how an input would be tracked, without adding it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				res, err := a.manager.Classify(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s %s\n", titleStyle.Render(res.Type.Label()), mutedStyle.Render("("+res.Detector+")"))
				fmt.Fprintf(out, "  source:   %s\n", res.Source)
				fmt.Fprintf(out, "  endpoint: %s\n", res.APIEndpoint)
				if res.RedirectURL != "" {
					fmt.Fprintf(out, "  page:     %s\n", res.RedirectURL)
				}
				if res.NeedsConfiguration() {
					fmt.Fprintln(out, labelStyle.Render("  needs --title-key and --feed-key, see `ntrack keys`"))
				}
				return nil
			})
		},
	}
}

func newKeysCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "keys <url>",
		Short: "List the paths of a JSON endpoint for --title-key and --feed-key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				keys, err := a.manager.DescribeJSON(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				writeKeys(cmd.OutOrStdout(), keys)
				return nil
			})
		},
	}
}

func newSearchCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search tracker titles, sources and content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				results, err := a.manager.Search(strings.Join(args, " "), limit)
				if err != nil {
					return err
				}
				writeResults(cmd.OutOrStdout(), results, time.Now())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")
	return cmd
}

func newOpenCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "open <id>",
		Short: "Open a tracker's latest item in the browser",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				t, err := resolveTracker(a, args[0])
				if err != nil {
					return err
				}
				link, err := a.opener.OpenTracker(t)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Opened %s\n", link)
				return nil
			})
		},
	}
}

// resolveTracker accepts a full id or the short id shown by list.
func resolveTracker(a *app, ref string) (*tracker.Tracker, error) {
	if ref == "" {
		return nil, fmt.Errorf("%w: empty id", tracker.ErrNotFound)
	}
	if t, err := a.manager.Get(ref); err == nil {
		return t, nil
	}

	var match *tracker.Tracker
	for _, t := range a.manager.List() {
		if !strings.HasSuffix(t.ID, ref) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("%q matches more than one tracker", ref)
		}
		match = t
	}
	if match == nil {
		return nil, fmt.Errorf("%w: %s", tracker.ErrNotFound, ref)
	}
	return match, nil
}
