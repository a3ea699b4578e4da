// Command chatmate is an interactive terminal client for the ChatMate API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/janisto/chatmate/internal/client"
	"github.com/janisto/chatmate/internal/client/cli"
)

const defaultServer = "http://localhost:8080/v1"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "chatmate:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("chatmate", flag.ContinueOnError)
	server := fs.String("server", envOr("CHATMATE_SERVER", defaultServer), "API base URL including the /v1 prefix")
	refresh := fs.String("refresh-token", os.Getenv("CHATMATE_REFRESH_TOKEN"), "resume a previous sign-in")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := cli.NewApp(client.New(*server, nil), os.Stdin, os.Stdout)
	if err := app.Open(ctx, *refresh); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	defer func() { _ = app.Close(context.Background()) }()

	err := app.Run(ctx)
	if token := app.RefreshToken(); token != "" {
		fmt.Fprintf(os.Stdout, "Resume with -refresh-token=%s\n", token)
	}
	return err
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
