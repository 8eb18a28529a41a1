// Package main provides the feedsim binary: a fake REST backend and a
// scripted client session that exercises the optimistic mutation engine.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"feedsync/internal/client"
	"feedsync/internal/config"
	"feedsync/internal/fakeapi"
	"feedsync/internal/observability"
	"feedsync/internal/pagination"

	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
	appName = "feedsim"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	configDir string
	logLevel  string
	cfg       *config.Config
	shutdown  func(context.Context) error
}

func rootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Fake feed backend and optimistic client simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.shutdown == nil {
				return nil
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return a.shutdown(ctx)
		},
	}
	cmd.PersistentFlags().StringVarP(&a.configDir, "config", "c", "", "Directory holding config.yml")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")

	cmd.AddCommand(serveCmd(a), simulateCmd(a))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})
	return cmd
}

func (a *app) setup() error {
	var paths []string
	if a.configDir != "" {
		paths = append(paths, a.configDir)
	}
	cfg, err := config.LoadConfig(paths...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	observability.SetGlobalLogger(observability.NewLogger(os.Stderr, observability.ParseLevel(cfg.LogLevel)))
	shutdown, err := observability.InitTracing(observability.TracingConfig{
		ServiceName:    appName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		Enabled:        cfg.TracingEnabled,
		Exporter:       cfg.TracingExporter,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SamplerRatio:   1,
	})
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.shutdown = shutdown
	return nil
}

func serveCmd(a *app) *cobra.Command {
	var (
		addr      string
		fixtures  string
		seed      fakeapi.SeedOptions
		latency   time.Duration
		rateLimit int
		metrics   bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the in-memory REST backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := fakeapi.NewStore(nil)
			if fixtures != "" {
				if err := fakeapi.LoadFixturesFile(store, fixtures); err != nil {
					return fmt.Errorf("load fixtures: %w", err)
				}
			} else if err := fakeapi.Generate(store, seed); err != nil {
				return fmt.Errorf("seed: %w", err)
			}

			srv := fakeapi.New(fakeapi.Config{
				Secret:    a.cfg.JWTSecret,
				Latency:   latency,
				RateLimit: rateLimit,
				Metrics:   metrics,
			}, store)
			if addr == "" {
				addr = ":" + a.cfg.FakeAPIPort
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			observability.GlobalLogger.Info("serving fake api",
				slog.String("addr", addr),
				slog.Int("users", len(store.Users())),
			)
			return srv.Listen(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to :FAKEAPI_PORT)")
	cmd.Flags().StringVar(&fixtures, "fixtures", "", "YAML fixtures file; replaces generated data")
	cmd.Flags().Int64Var(&seed.Seed, "seed", 1, "Seed for generated data")
	cmd.Flags().IntVar(&seed.Users, "users", 5, "Generated users")
	cmd.Flags().IntVar(&seed.PostsPerUser, "posts", 12, "Generated posts per user")
	cmd.Flags().DurationVar(&latency, "latency", 0, "Artificial latency per API request")
	cmd.Flags().IntVar(&rateLimit, "rate-limit", 0, "Requests per minute per client, 0 disables")
	cmd.Flags().BoolVar(&metrics, "metrics", true, "Expose Prometheus metrics at /metrics")
	return cmd
}

func simulateCmd(a *app) *cobra.Command {
	var (
		username string
		password string
		target   string
	)
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a scripted session against API_BASE_URL and print snapshots",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			c, err := client.New(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			go func() { _ = c.Run(ctx) }()

			s := &script{ctx: ctx, c: c}
			return s.run(username, password, target)
		},
	}
	cmd.Flags().StringVar(&username, "user", "demo", "Username to sign in with")
	cmd.Flags().StringVar(&password, "password", fakeapi.DefaultPassword, "Password")
	cmd.Flags().StringVar(&target, "target", "user-2", "Profile to browse")
	return cmd
}

type script struct {
	ctx context.Context
	c   *client.Client
	err error
}

// step runs fn on the client loop and waits for the network to settle.
func (s *script) step(name string, fn func() error) {
	if s.err != nil {
		return
	}
	var fnErr error
	if err := s.c.Do(s.ctx, func() { fnErr = fn() }); err != nil {
		s.err = err
		return
	}
	if fnErr != nil {
		s.err = fmt.Errorf("%s: %w", name, fnErr)
		return
	}
	s.err = s.c.Settle(s.ctx, 0)
}

func (s *script) print(label string, v any) {
	if s.err != nil {
		return
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		s.err = err
		return
	}
	fmt.Printf("== %s\n%s\n", label, raw)
}

func (s *script) run(username, password, target string) error {
	user, err := s.c.Login(s.ctx, username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	s.print("signed in", user)

	profile := s.c.Profile(target)
	first, second := s.c.FollowButton(target), s.c.FollowButton(target)
	s.step("mount profile", func() error {
		if err := profile.Mount(s.ctx); err != nil {
			return err
		}
		if err := first.Mount(s.ctx); err != nil {
			return err
		}
		return second.Mount(s.ctx)
	})
	s.step("snapshot profile", func() error {
		p, _ := profile.Profile()
		s.print("profile", p)
		s.print("posts", profile.Posts(pagination.TabPosts))
		return nil
	})

	s.step("follow", func() error {
		if err := first.Toggle(s.ctx); err != nil {
			return err
		}
		s.print("follow buttons (optimistic)", map[string]bool{"first": first.Following(), "second": second.Following()})
		return nil
	})
	s.step("follow settled", func() error {
		p, _ := profile.Profile()
		s.print("follow buttons (settled)", map[string]any{
			"first": first.Following(), "second": second.Following(), "followers": p.FollowersCount,
		})
		return nil
	})

	var postID string
	s.step("like", func() error {
		posts := profile.Posts(pagination.TabPosts)
		if len(posts) == 0 {
			return nil
		}
		postID = posts[0].ID
		return profile.Like(s.ctx, postID)
	})
	if postID == "" {
		return s.err
	}

	detail := s.c.PostDetail(postID)
	s.step("mount detail", func() error { return detail.Mount(s.ctx) })
	s.step("comment", func() error {
		_, err := detail.AddComment(s.ctx, "Posted from feedsim", "")
		return err
	})
	s.step("snapshot detail", func() error {
		p, _ := detail.Post()
		s.print("post", p)
		s.print("comments", detail.Comments().Snapshot())
		return nil
	})
	s.step("delete comment", func() error {
		list := detail.Comments().Snapshot()
		for _, cm := range list {
			if cm.Author.ID == user.ID {
				return detail.Comments().Delete(s.ctx, cm.ID)
			}
		}
		return nil
	})
	s.step("snapshot after delete", func() error {
		s.print("comments after delete", detail.Comments().Snapshot())
		return nil
	})

	s.step("unmount", func() error {
		detail.Unmount()
		first.Unmount()
		second.Unmount()
		profile.Unmount()
		return nil
	})

	s.drainNotices()
	return s.err
}

func (s *script) drainNotices() {
	for {
		select {
		case n := <-s.c.Notices():
			fmt.Printf("== notice\n%s: %v\n", n.Op, n.Err)
		default:
			return
		}
	}
}
