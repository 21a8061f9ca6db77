// Command inspect reads a chat-core Badger database without locking it out
// from the running server, and mints development tokens.
package main

import (
	"chat-core/auth"
	"chat-core/internal"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	BadgerFilepath    string        `envconfig:"BADGER_FILEPATH" required:"true"`
	JWTSecret         string        `envconfig:"JWT_SECRET"`
	AuthTokenDuration time.Duration `envconfig:"AUTH_TOKEN_DURATION" default:"24h"`
	DebugPort         int           `envconfig:"DEBUG_PORT" default:"8081"`
	Colours           bool          `envconfig:"INSPECT_COLOURS" default:"true"`
}

func main() {
	prefix := flag.String("prefix", "room:", "Key prefix to scan (msg:, room:, member:, invite:, notif:, profile:, reaction:)")
	limit := flag.Int("limit", internal.DefaultInspectLimit, "Maximum number of rows")
	serve := flag.Bool("serve", false, "Serve the HTML inspector instead of printing a table")
	token := flag.String("token", "", "Print a signed access token for this user id and exit")
	roles := flag.String("roles", "", "Comma separated roles carried by -token")
	flag.Parse()

	_ = godotenv.Load()
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	if *token != "" {
		signed, err := mintToken(config, *token, *roles)
		if err != nil {
			log.Fatalf("Token error: %v", err)
		}
		fmt.Println(signed)
		return
	}

	// BypassLockGuard allows opening while the server holds the lock.
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if *serve {
		stats := func() map[string]any {
			return map[string]any{
				"Status": "Viewer Mode (Read-Only)",
				"Time":   time.Now().Format(time.RFC822),
			}
		}
		fmt.Printf("Viewer started at http://localhost:%d/inspect\n", config.DebugPort)
		server := &http.Server{
			Addr:              fmt.Sprintf("localhost:%d", config.DebugPort),
			Handler:           internal.NewInspectHandler(db, nil, stats),
			ReadHeaderTimeout: 5 * time.Second,
		}
		if err := server.ListenAndServe(); err != nil {
			log.Fatal(err)
		}
		return
	}

	rows, err := internal.Scan(db, *prefix, *limit, nil)
	if err != nil {
		log.Fatal(err)
	}

	header := fmt.Sprintf("  ====== %s (%d rows) ======", *prefix, len(rows))
	if config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	fmt.Println(header)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Type", "Scope", "Time", "Entity ID", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	for _, row := range rows {
		table.Append([]string{row.Type, row.Namespace, row.Timestamp, row.EntityID, row.Detail})
	}
	table.Render()
}

func mintToken(config Config, userID, roles string) (string, error) {
	if config.JWTSecret == "" {
		return "", fmt.Errorf("JWT_SECRET is required to mint a token")
	}
	issuer, err := auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration)
	if err != nil {
		return "", err
	}
	var list []string
	if roles != "" {
		list = strings.Split(roles, ",")
	}
	return issuer.GenerateToken(userID, list)
}
