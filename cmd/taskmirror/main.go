package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"

	"github.com/kazz187/taskmirror/internal/admin"
)

var (
	app = kingpin.New("taskmirror", "Control a running taskmirror server")

	serverURL = app.Flag("server", "Server base URL").Envar("TASKMIRROR_SERVER_URL").Default("http://localhost:3100").String()
	apiKey    = app.Flag("api-key", "API key sent as X-API-Key").Envar("TASKMIRROR_API_KEY").String()
	timeout   = app.Flag("timeout", "Request timeout").Default("5m").Duration()

	triggerCmd          = app.Command("trigger", "Run one reconciliation cycle now and print its report")
	resetCmd            = app.Command("reset", "Forget the ledger and link cache; the next cycle bootstraps again")
	statusCmd           = app.Command("status", "Show sync status")
	exportCmd           = app.Command("export-state", "Dump the ledger and link table")
	invalidateRosterCmd = app.Command("invalidate-roster", "Drop the cached member roster")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	client := admin.NewClient(&http.Client{}, *serverURL, *apiKey)

	var (
		res any
		err error
	)
	switch command {
	case triggerCmd.FullCommand():
		res, err = client.Trigger(ctx)
	case resetCmd.FullCommand():
		res, err = client.Reset(ctx)
	case statusCmd.FullCommand():
		res, err = client.Status(ctx)
	case exportCmd.FullCommand():
		res, err = client.ExportState(ctx)
	case invalidateRosterCmd.FullCommand():
		err = client.InvalidateRoster(ctx)
		res = map[string]any{"invalidated_at": time.Now().UTC()}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
