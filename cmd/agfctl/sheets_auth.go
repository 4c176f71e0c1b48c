package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"

	gsheet "agfdash/internal/sheets/google"
)

func newSheetsAuthCmd() *cobra.Command {
	var (
		port    string
		outFile string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "sheets-auth",
		Short: "Authorize the export worker with a Google user account and save the token",
		Long: "Runs the OAuth consent flow for the client in GOOGLE_OAUTH_CLIENT_JSON or\n" +
			"GOOGLE_OAUTH_CLIENT_FILE. The client must allow http://localhost:<port>/callback\n" +
			"as a redirect URI. Point GOOGLE_OAUTH_TOKEN_FILE at the saved token.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := gsheet.OAuthConfigFromEnv()
			if err != nil {
				return err
			}
			cfg.RedirectURL = "http://localhost:" + port + "/callback"

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			ln, err := net.Listen("tcp", "localhost:"+port)
			if err != nil {
				return fmt.Errorf("listen for callback: %w", err)
			}
			code, err := awaitCode(ctx, ln, func(state string) {
				fmt.Fprintf(cmd.OutOrStdout(), "Open this URL to authorize:\n%s\n", cfg.AuthCodeURL(state, oauth2.AccessTypeOffline))
			})
			if err != nil {
				return err
			}

			tok, err := cfg.Exchange(ctx, code)
			if err != nil {
				return fmt.Errorf("token exchange: %w", err)
			}
			if err := gsheet.SaveToken(outFile, tok); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved token to %s\n", outFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", envOr("OAUTH_REDIRECT_PORT", "8085"), "local callback port")
	cmd.Flags().StringVar(&outFile, "out", envOr("GOOGLE_OAUTH_TOKEN_FILE", "token.json"), "where to save the token")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "how long to wait for consent")
	return cmd
}

// awaitCode serves the redirect endpoint on ln until the authorization code
// arrives or ctx ends. A provider error ends the wait too.
func awaitCode(ctx context.Context, ln net.Listener, showURL func(state string)) (string, error) {
	state := uuid.NewString()
	type result struct {
		code string
		err  error
	}
	results := make(chan result, 1)
	deliver := func(r result) {
		select {
		case results <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("error") != "":
			http.Error(w, "OAuth error: "+q.Get("error"), http.StatusBadRequest)
			deliver(result{err: fmt.Errorf("authorization denied: %s", q.Get("error"))})
		case q.Get("state") != state:
			http.Error(w, "state mismatch", http.StatusBadRequest)
		default:
			fmt.Fprintln(w, "You may close this window and return to the terminal.")
			deliver(result{code: q.Get("code")})
		}
	})
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			deliver(result{err: fmt.Errorf("callback server: %w", err)})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	showURL(state)
	select {
	case r := <-results:
		return r.code, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("authorization not completed: %w", ctx.Err())
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
