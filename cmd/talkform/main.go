package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cloudwego/eino/adk"
	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cobra"

	"github.com/tbxark/talkform/agent"
	"github.com/tbxark/talkform/catalog"
	"github.com/tbxark/talkform/config"
	"github.com/tbxark/talkform/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	root := &cobra.Command{
		Use:          "talkform",
		Short:        "Guided data-analysis forms over chat",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional dotenv file")

	loadEnv := func() (*config.EnvVars, error) {
		env, err := config.LoadEnv(envFile)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		slog.SetLogLoggerLevel(env.SlogLevel())
		return env, nil
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Serve the webhook over HTTP",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := loadEnv()
				if err != nil {
					return err
				}
				return serve(cmd.Context(), env)
			},
		},
		&cobra.Command{
			Use:   "chat",
			Short: "Talk to the bot from the terminal",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := loadEnv()
				if err != nil {
					return err
				}
				return chat(cmd.Context(), env, cmd.InOrStdin(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "forms",
			Short: "List the forms of the catalog",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				env, err := loadEnv()
				if err != nil {
					return err
				}
				return listForms(env, cmd.OutOrStdout())
			},
		},
	)
	return root
}

func serve(ctx context.Context, env *config.EnvVars) error {
	a, err := newApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()
	a.watchCatalog(ctx)

	srv := server.New(server.Config{
		Port:         env.Port,
		ReadTimeout:  env.ReadTimeout,
		WriteTimeout: env.WriteTimeout,
	}, a.runner, a.loader, server.WithReadyCheck("database", a.db.PingContext))
	return srv.Run(ctx)
}

const chatSession = "cli"

func chat(ctx context.Context, env *config.EnvVars, in io.Reader, out io.Writer) error {
	a, err := newApp(ctx, env)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx = agent.WithStateKey(ctx, chatSession)
	runner := adk.NewRunner(ctx, adk.RunnerConfig{
		Agent: agent.NewAgent("talkform", "Guided data-analysis forms", a.runner),
	})
	history := agent.NewMemoryHistoryStore(env.HistoryLimit)

	fmt.Fprintln(out, "Escribe un mensaje (por ejemplo /talk2numbers_busquedas). Ctrl+D para salir.")
	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "> ")
		line, rErr := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			msgs, err := history.Append(ctx, schema.UserMessage(line))
			if err != nil {
				return err
			}
			if err := printReplies(ctx, runner, history, msgs, out); err != nil {
				return err
			}
		}
		if rErr != nil {
			if errors.Is(rErr, io.EOF) {
				fmt.Fprintln(out)
				return nil
			}
			return rErr
		}
	}
}

func printReplies(ctx context.Context, runner *adk.Runner, history *agent.HistoryStore, msgs []*schema.Message, out io.Writer) error {
	iter := runner.Run(ctx, msgs)
	for {
		event, ok := iter.Next()
		if !ok {
			return nil
		}
		if event.Err != nil {
			return event.Err
		}
		msg, err := event.Output.MessageOutput.GetMessage()
		if err != nil {
			return err
		}
		if _, err := history.Append(ctx, msg); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n\n", msg.Content)
	}
}

func listForms(env *config.EnvVars, out io.Writer) error {
	cat, err := catalog.NewLoader(env.CatalogDir).Load()
	if err != nil {
		return err
	}
	for _, spec := range cat.Forms() {
		mode := "query"
		if !spec.Confirm {
			mode = "guided"
		}
		fmt.Fprintf(out, "%-12s %-7s %s\n", spec.Name, mode, strings.Join(spec.Slots(), ", "))
	}
	return nil
}
