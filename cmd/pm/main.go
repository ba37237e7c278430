package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"processmap/internal/app"
	"processmap/internal/config"
	"processmap/internal/logging"
	"processmap/internal/registry"
	"processmap/internal/repo"
	"processmap/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pm",
	Short: "processmap CLI",
	Long: `processmap maps a clinical workflow as process titles, their ordered
sub-processes and the typed attributes recorded on each sub-process.
- Process title: a top-level step such as "Booking" (id PT_BOOKING).
- Sub-process: an ordered step under a process title, ordered by seq then name.
- Attribute: a named, typed value (string, number, boolean, array, object, richtext).
- Follow-up: an open question pinned to one attribute of one sub-process.
- Attribute names: the suggestion catalog, pruned when no sub-process uses a name.
- Event log: every change, view with 'pm log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PROCESSMAP")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor recorded on changes")
	rootCmd.PersistentFlags().String("log-level", "", "log level (overrides log.level)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(processCmd())
	rootCmd.AddCommand(subCmd())
	rootCmd.AddCommand(attrCmd())
	rootCmd.AddCommand(namesCmd())
	rootCmd.AddCommand(followUpCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(accessCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the workspace config and database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			wrote, err := app.Init(cmd.Context(), workspace)
			if err != nil {
				return err
			}
			if wrote {
				fmt.Printf("wrote %s\n", config.Path(workspace))
			}
			fmt.Println("workspace ready")
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			return withWorkspace(ctx, true, func(ctx context.Context, ws *app.Workspace) error {
				logger := ws.Logger
				secret := viper.GetString("jwt_secret")
				if secret == "" {
					return fmt.Errorf("PROCESSMAP_JWT_SECRET is required for bearer auth")
				}
				if !cmd.Flags().Changed("addr") && ws.Config.Server.Addr != "" {
					addr = ws.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && ws.Config.Server.BasePath != "" {
					basePath = ws.Config.Server.BasePath
				}
				handler, err := server.New(server.Config{
					Engine:   ws.Engine,
					Access:   ws.Access,
					Bus:      ws.Bus,
					BasePath: basePath,
					Auth: server.AuthConfig{
						JWTSecret: secret,
						DevLogin:  ws.Config.Auth.DevLogin,
						TokenTTL:  ws.TokenTTL(),
					},
					Logger: logger.Named("http"),
				})
				if err != nil {
					return err
				}

				sweeper, err := registry.NewSweeper(ws.Engine.Names, ws.Config.Names.SweepSchedule, logger.Named("sweeper"))
				if err != nil {
					return err
				}
				sweeper.Start()
				defer sweeper.Stop()

				hooks := server.NewWebhookDispatcher(ws.Bus, ws.Config.Webhooks, logger.Named("webhooks"))
				hookCtx, stopHooks := context.WithCancel(ctx)
				defer func() {
					stopHooks()
					hooks.Wait()
				}()
				if err := hooks.Start(hookCtx); err != nil {
					return err
				}

				srv := &http.Server{Addr: addr, Handler: handler}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				logger.Info("serving processmap API",
					zap.String("addr", addr),
					zap.String("base_path", basePath),
					zap.String("docs", "/docs"))
				fmt.Printf("Serving processmap API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every committed change with its actor and payload.",
	}
	log.AddCommand(logTailCmd())
	return log
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				events, err := ws.Engine.Repo.LatestEvents(ctx, n, 0, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable("ID", "TS", "Type", "Process", "Entity", "Actor")
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.ProcessID, evt.EntityKind + ":" + evt.EntityID, evt.ActorID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.ProcessID, "process", "", "process id filter")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

// --- helpers ---

func withWorkspace(ctx context.Context, live bool, fn func(context.Context, *app.Workspace) error) error {
	workspace := viper.GetString("workspace")
	level := viper.GetString("log-level")
	if level == "" {
		cfg, err := config.Load(workspace)
		if err != nil {
			return err
		}
		level = cfg.Log.Level
	}
	logger, err := logging.New(level)
	if err != nil {
		return err
	}
	defer logger.Sync()
	ws, err := app.Open(ctx, workspace, app.Options{Logger: logger, Live: live})
	if err != nil {
		return err
	}
	return errors.Join(fn(ctx, ws), ws.Close())
}

func actorID() string {
	return repo.NormalizeEmail(viper.GetString("actor-id"))
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
}

// printJSONOrTable prints one record as a field/value table, or as JSON
// with --json.
func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil {
		return printJSON(v)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := newTable("Field", "Value")
	for _, k := range keys {
		val := fields[k]
		switch val.(type) {
		case map[string]any, []any:
			nested, _ := json.Marshal(val)
			val = string(nested)
		}
		tw.AppendRow(table.Row{k, val})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	return writeJSON(os.Stdout, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
