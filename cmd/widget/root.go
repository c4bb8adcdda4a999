package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"chat-widget/internal/app"
	"chat-widget/internal/config"
	"chat-widget/internal/logging"
	"chat-widget/internal/server"
)

const clearPrompt = "Are you sure you want to clear the conversation?"

type cli struct {
	envFiles []string
	cfg      *config.Config
	log      *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:          "widget",
		Short:        "Chat widget server and terminal client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(c.envFiles...)
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.log = logging.NewWithWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogJSON)
			return nil
		},
	}
	root.PersistentFlags().StringSliceVar(&c.envFiles, "env-file", nil, "dotenv files to load (default .env)")

	root.AddCommand(c.serveCmd(), c.sendCmd(), c.historyCmd(), c.clearCmd())
	return root
}

func (c *cli) build(ctx context.Context) (*app.App, error) {
	return app.Build(ctx, c.cfg, c.log)
}

func (c *cli) serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the widget page and its JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.build(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := server.New(a.Session, a.Formatter, server.WithLogger(c.log))
			if err != nil {
				return err
			}
			return serve(ctx, c.log, &http.Server{
				Addr:              c.cfg.Addr,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 15 * time.Second,
				IdleTimeout:       120 * time.Second,
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides WIDGET_ADDR)")
	return cmd
}

func serve(ctx context.Context, log *slog.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("widget listening", "addr", srv.Addr)
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

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (c *cli) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := a.Session.Send(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out.Reply.Content)
			if out.Failed {
				return errors.New("chat backend call failed")
			}
			return nil
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	var pretty bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stored transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			var renderer *glamour.TermRenderer
			if pretty {
				renderer, err = glamour.NewTermRenderer(
					glamour.WithAutoStyle(),
					glamour.WithWordWrap(80),
				)
				if err != nil {
					return fmt.Errorf("markdown renderer: %w", err)
				}
			}

			w := cmd.OutOrStdout()
			for _, m := range a.Session.Transcript() {
				if renderer == nil {
					fmt.Fprintf(w, "[%s] %s: %s\n", m.Time, m.Role, m.Content)
					continue
				}
				body, err := renderer.Render(m.Content)
				if err != nil {
					return fmt.Errorf("render message: %w", err)
				}
				fmt.Fprintf(w, "[%s] %s:\n%s", m.Time, m.Role, body)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&pretty, "pretty", false, "render messages as terminal markdown")
	return cmd
}

func (c *cli) clearCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete the stored transcript",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes && !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), clearPrompt) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
			a, err := c.build(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Session.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Conversation cleared.")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// confirm reads a y/yes answer; anything else, including EOF, declines.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
