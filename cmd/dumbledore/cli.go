package main

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	apperrors "github.com/hpungsan/dumbledore/internal/errors"
	"github.com/hpungsan/dumbledore/internal/ops"
	"github.com/hpungsan/dumbledore/internal/source"
	"github.com/hpungsan/dumbledore/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(env *ops.Env) *cli.App {
	app := &cli.App{
		Name:    "dumbledore",
		Usage:   "Personal knowledge advisor over your notes",
		Version: Version,
		Commands: []*cli.Command{
			syncCmd(env),
			chatCmd(env),
			askCmd(env),
			searchCmd(env),
			notesCmd(env),
			statsCmd(env),
			profileCmd(env),
			conversationsCmd(env),
			clearCmd(env),
			styleCmd(env),
			exportCmd(env),
			webCmd(env),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// syncCmd creates the sync command.
func syncCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "sync",
		Usage: "Pull notes from the configured sources and index them",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "Sync one source: apple|markdown|lumifyhub"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Cap notes listed per source"},
			&cli.BoolFlag{Name: "clear", Usage: "Wipe the index before syncing"},
			&cli.BoolFlag{Name: "watch", Aliases: []string{"w"}, Usage: "Keep running and re-sync on file changes"},
		},
		Action: func(c *cli.Context) error {
			input := ops.SyncInput{
				Source: c.String("source"),
				Limit:  c.Int("limit"),
				Clear:  c.Bool("clear"),
			}

			out, err := ops.Sync(c.Context, env, input)
			if err != nil {
				return outputError(err)
			}
			fmt.Printf("Synced %d notes (%d chunks).\n", out.Synced, out.Chunks)

			if c.Bool("watch") {
				return runWatch(c, env, input.Limit)
			}
			return nil
		},
	}
}

// runWatch blocks re-syncing changed sources until interrupted.
func runWatch(c *cli.Context, env *ops.Env, limit int) error {
	w, err := source.NewWatcher(env.Config.MarkdownDir, env.Config.LumifyExportDir, 0, os.Stdout)
	if err != nil {
		return outputError(err)
	}
	defer w.Close()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("Watching for changes (Ctrl-C to stop)...")
	err = w.Run(ctx, func(sourceType string) {
		out, err := ops.Sync(ctx, env, ops.SyncInput{Source: sourceType, Limit: limit})
		if err != nil {
			fmt.Fprintf(os.Stderr, "re-sync %s failed: %v\n", sourceType, err)
			return
		}
		fmt.Printf("Re-synced %s: %d notes (%d chunks).\n", sourceType, out.Synced, out.Chunks)
	})
	if stderrors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// chatCmd creates the chat command.
func chatCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive advisor session",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "continue", Aliases: []string{"c"}, Usage: "Resume the most recent active conversation"},
		},
		Action: func(c *cli.Context) error {
			ops.AutoSyncIfNeeded(c.Context, env)
			return runChat(c.Context, env, c.Bool("continue"))
		},
	}
}

// askCmd creates the ask command.
func askCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask a one-shot question (no conversation is kept)",
		ArgsUsage: "<question...>",
		Action: func(c *cli.Context) error {
			question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if question == "" {
				return outputError(apperrors.NewInvalidRequest("question is required"))
			}

			ops.AutoSyncIfNeeded(c.Context, env)

			out, err := ops.Ask(c.Context, env, ops.AskInput{Question: question})
			if err != nil {
				return outputError(err)
			}

			fmt.Println(out.Answer)
			if len(out.Sources) > 0 {
				fmt.Printf("\nSources: %s\n", strings.Join(out.Sources, ", "))
			}
			return nil
		},
	}
}

// searchCmd creates the search command.
func searchCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the indexed notes",
		ArgsUsage: "<query...>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "top", Aliases: []string{"t"}, Usage: "Number of results"},
			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "Restrict to one source type"},
		},
		Action: func(c *cli.Context) error {
			query := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if query == "" {
				return outputError(apperrors.NewInvalidRequest("query is required"))
			}

			ops.AutoSyncIfNeeded(c.Context, env)

			out, err := ops.Search(c.Context, env, ops.SearchInput{
				Query:  query,
				TopK:   c.Int("top"),
				Source: c.String("source"),
			})
			if err != nil {
				return outputError(err)
			}

			fmt.Println(out.Format())
			return nil
		},
	}
}

// notesCmd creates the notes command.
func notesCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "notes",
		Usage: "List the synced notes",
		Action: func(c *cli.Context) error {
			out, err := ops.Notes(c.Context, env, ops.NotesInput{})
			if err != nil {
				return outputError(err)
			}

			if len(out.Notes) == 0 {
				fmt.Println("No notes synced yet. Run 'dumbledore sync' to get started.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TITLE\tSOURCE\tCHUNKS\tSYNCED")
			for _, n := range out.Notes {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", n.Title, n.SourceType, n.ChunkCount, formatUnixTime(n.SyncedAt))
			}
			w.Flush()
			fmt.Printf("\n%d notes\n", out.Total)
			return nil
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show index and conversation statistics",
		Action: func(c *cli.Context) error {
			out, err := ops.Stats(c.Context, env)
			if err != nil {
				return outputError(err)
			}

			fmt.Printf("Notes:          %d\n", out.Notes)
			fmt.Printf("Chunks:         %d\n", out.Chunks)
			fmt.Printf("Conversations:  %d\n", out.Conversations)
			if out.Dimension > 0 {
				fmt.Printf("Dimension:      %d\n", out.Dimension)
			}
			fmt.Printf("Embed model:    %s\n", out.EmbedModel)
			fmt.Printf("Vector backend: %s\n", out.VectorBackend)
			if out.LastSync > 0 {
				fmt.Printf("Last sync:      %s\n", formatUnixTime(out.LastSync))
			}
			if out.DBSizeBytes > 0 {
				fmt.Printf("Database size:  %s\n", formatByteSize(out.DBSizeBytes))
			}
			return nil
		},
	}
}

// profileCmd creates the profile command.
func profileCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Show the profile note used to personalize answers",
		Action: func(c *cli.Context) error {
			out, err := ops.LookupProfile(c.Context, env)
			if err != nil {
				return outputError(err)
			}

			if !out.Found {
				fmt.Printf("No profile note found. Create a note titled %q and sync.\n", out.Title)
				return nil
			}
			fmt.Printf("%s\n\n%s\n", out.Title, out.Content)
			return nil
		},
	}
}

// conversationsCmd creates the conversations command.
func conversationsCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "conversations",
		Usage: "List recent conversations",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "Maximum conversations to list"},
		},
		Action: func(c *cli.Context) error {
			out, err := ops.Conversations(c.Context, env, ops.ConversationsInput{
				Limit: c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}

			if len(out.Conversations) == 0 {
				fmt.Println("No conversations yet. Run 'dumbledore chat' to start one.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTOPIC\tSTATUS\tLAST MESSAGE")
			for _, conv := range out.Conversations {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", conv.ID, conv.Topic, conv.Status, formatUnixTime(conv.LastMessageAt))
			}
			w.Flush()
			fmt.Printf("\n%d conversations\n", out.Total)
			return nil
		},
	}
}

// clearCmd creates the clear command.
func clearCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "clear",
		Usage: "Wipe the vector index and sync state (conversations are kept)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "Skip the confirmation prompt"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("yes") {
				ok, err := confirm("This wipes the vector index and sync state. Conversations are kept. Continue? [y/N] ")
				if err != nil {
					return outputError(apperrors.NewInternal(err))
				}
				if !ok {
					fmt.Println("Aborted.")
					return nil
				}
			}

			out, err := ops.Clear(c.Context, env)
			if err != nil {
				return outputError(err)
			}
			fmt.Printf("Cleared %d notes (%d chunks).\n", out.Notes, out.Chunks)
			return nil
		},
	}
}

// styleCmd creates the style command.
func styleCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "style",
		Usage: "Generate a writing-style profile from the synced notes",
		Action: func(c *cli.Context) error {
			out, err := ops.Style(c.Context, env)
			if err != nil {
				return outputError(err)
			}

			fmt.Printf("Analyzed %d writing samples. Stored as %q.\n\n%s\n", out.Samples, out.Title, out.Profile)
			return nil
		},
	}
}

// exportCmd creates the export command.
func exportCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export conversations and the note inventory as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Destination file (default: timestamped file under the data directory)"},
		},
		Action: func(c *cli.Context) error {
			out, err := ops.Export(c.Context, env, ops.ExportInput{
				Path: c.String("out"),
			})
			if err != nil {
				return outputError(err)
			}

			fmt.Printf("Exported %d notes and %d conversations to %s\n", out.Notes, out.Conversations, out.Path)
			return nil
		},
	}
}

// webCmd creates the web command.
func webCmd(env *ops.Env) *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Serve the local browser UI",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port to listen on"},
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
		},
		Action: func(c *cli.Context) error {
			port := c.Int("port")
			if port <= 0 {
				port = env.Config.WebPort
			}
			srv := web.NewServer(env, Version, c.String("bind"), port)
			return web.Run(srv)
		},
	}
}

// Helper functions

// outputError formats an error for the CLI.
func outputError(err error) error {
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// confirm prompts on stdout and reads a yes/no answer from stdin.
func confirm(prompt string) (bool, error) {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

// formatUnixTime formats a unix timestamp for display.
func formatUnixTime(unix int64) string {
	return time.Unix(unix, 0).Local().Format("2006-01-02 15:04")
}

// formatByteSize renders a byte count in a human unit.
func formatByteSize(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
