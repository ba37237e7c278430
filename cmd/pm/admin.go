package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"processmap/internal/app"
	"processmap/internal/dataset"
	"processmap/internal/domain"
	"processmap/internal/repo"
)

func importCmd() *cobra.Command {
	var demo, replace bool
	cmd := &cobra.Command{
		Use:   "import [FILE]",
		Short: "Import a dataset document (use - for stdin)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc dataset.Document
			switch {
			case demo:
				doc = dataset.Demo()
			case len(args) == 1:
				data, err := readInput(args[0])
				if err != nil {
					return err
				}
				if doc, err = dataset.Parse(data); err != nil {
					return err
				}
			default:
				return fmt.Errorf("FILE or --demo required")
			}
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				sum, err := dataset.Import(ctx, ws.Engine, doc, dataset.ImportOptions{Replace: replace, ActorID: actorID()})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(sum)
				}
				fmt.Printf("imported %d process titles, %d sub-processes, %d attributes\n", sum.Processes, sum.SubProcesses, sum.Attributes)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&demo, "demo", false, "import the bundled demo clinic workflow")
	cmd.Flags().BoolVar(&replace, "replace", false, "delete existing process titles first")
	return cmd
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every process title as a dataset document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				doc, err := dataset.Export(ctx, ws.Engine)
				if err != nil {
					return err
				}
				if out == "" || out == "-" {
					return printJSON(doc)
				}
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				if err := writeJSON(f, doc); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")
	return cmd
}

func accessCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "access",
		Short: "Manage the email allow-list",
		Long:  "Emails listed in auth.allowed_emails are always allowed and cannot be removed here.",
	}
	a.AddCommand(&cobra.Command{
		Use:   "allow EMAIL",
		Short: "Allow an email",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				return ws.Access.Allow(ctx, args[0], actorID())
			})
		},
	})
	a.AddCommand(&cobra.Command{
		Use:   "deny EMAIL",
		Short: "Remove an email from the stored allow-list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				return ws.Access.Deny(ctx, args[0])
			})
		},
	})
	a.AddCommand(&cobra.Command{
		Use:   "check EMAIL",
		Short: "Report whether an email may use the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				ok, err := ws.Access.IsAllowed(ctx, args[0])
				if err != nil {
					return err
				}
				if ok {
					fmt.Println("allowed")
				} else {
					fmt.Println("not allowed")
				}
				return nil
			})
		},
	})
	a.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List allowed emails",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				users, err := ws.Access.List(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := newTable("Email", "Added by", "Created")
				for _, u := range users {
					tw.AppendRow(table.Row{u.Email, u.AddedBy, u.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return a
}

func apiKeyCmd() *cobra.Command {
	k := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	k.AddCommand(apiKeyCreateCmd())
	k.AddCommand(apiKeyListCmd())
	k.AddCommand(apiKeyDeleteCmd())
	return k
}

func apiKeyCreateCmd() *cobra.Command {
	var actor, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (printed once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				if err := ws.Access.Require(ctx, actor); err != nil {
					return err
				}
				secret := "pmk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   repo.NormalizeEmail(actor),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC().Format(time.RFC3339),
				}
				if err := ws.Engine.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": secret})
				}
				fmt.Printf("id:  %s\nkey: %s\n", key.ID, secret)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "allowed email the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "label")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func apiKeyListCmd() *cobra.Command {
	var actor string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				keys, err := ws.Engine.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable("ID", "Actor", "Name", "Created")
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "only keys of this actor")
	return cmd
}

func apiKeyDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete an API key",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), false, func(ctx context.Context, ws *app.Workspace) error {
				return ws.Engine.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}
}
