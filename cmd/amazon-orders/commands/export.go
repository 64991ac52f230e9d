package commands

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"amazon-order-export/lib/configutil"
	"amazon-order-export/lib/export"
	"amazon-order-export/lib/scrapers/amazon/core"
	"amazon-order-export/lib/scrapers/amazon/orders"
	"amazon-order-export/lib/serviceutil"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// login data may be stored in amazon.json5 (plus amazon.local.json5
// overrides), anything missing is prompted for interactively
type credentialsConfig struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

var (
	jsonPath    *string
	csvPath     *string
	includeFree *bool
)

func init() {
	jsonPath = exportCmd.Flags().String("json", "", "Write the orders to this path as JSON.")
	csvPath = exportCmd.Flags().String("csv", "", "Write the orders to this path as pipe-delimited CSV.")
	includeFree = exportCmd.Flags().Bool("include_free", false, "Keep orders with a total of zero.")
	rootCmd.AddCommand(exportCmd)
}

var exportCmd = &cobra.Command{
	Use:   "export [--json <path>] [--csv <path>] [--include_free]",
	Short: "Logs into amazon.de and exports the account's order history.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		creds, err := readCredentials()
		if err != nil {
			serviceutil.Fatal("failed to read login data", err)
		}

		client, err := core.NewClient(ctx, core.ClientOptions{})
		if err != nil {
			serviceutil.Fatal("failed to initialize amazon client", err)
		}
		defer client.Close()

		result, err := orders.Download(ctx, client, creds, orders.DownloadOptions{
			IncludeFree: *includeFree,
		})

		var authErr *core.AuthError
		if errors.As(err, &authErr) {
			client.Close()
			serviceutil.Fatal("login rejected", err)
		}

		aborted := false
		if err != nil {
			slog.Error("traversal aborted, exporting the orders gathered so far", "err", err)
			aborted = true
		}
		slog.Info("downloaded orders", "count", len(result))

		if *jsonPath != "" {
			_, err := export.ToJSON(result, *jsonPath)
			if err != nil {
				serviceutil.Fatal("failed to write json export", err)
			}
			slog.Info("wrote json export", "path", *jsonPath)
		}
		if *csvPath != "" {
			_, err := export.ToCSV(result, export.DefaultDelimiter, *csvPath)
			if err != nil {
				serviceutil.Fatal("failed to write csv export", err)
			}
			slog.Info("wrote csv export", "path", *csvPath)
		}

		if aborted {
			client.Close()
			os.Exit(1)
		}
	},
}

func readCredentials() (core.Credentials, error) {
	creds := core.Credentials{}

	config, err := configutil.ReadConfig[credentialsConfig]("amazon.json5")
	if err != nil && !os.IsNotExist(err) {
		return creds, err
	}
	creds.Email = config.Email
	creds.Password = config.Password

	stdin := bufio.NewReader(os.Stdin)

	if creds.Email == "" {
		fmt.Print("email: ")
		line, err := stdin.ReadString('\n')
		if err != nil {
			return creds, err
		}
		creds.Email = strings.TrimSpace(line)
	}
	if creds.Password == "" {
		fmt.Print("password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return creds, err
		}
		creds.Password = string(raw)
	}

	fmt.Print("one-time code (leave empty if the account has no second factor): ")
	line, err := stdin.ReadString('\n')
	if err != nil {
		return creds, err
	}
	creds.OneTimeCode = strings.TrimSpace(line)

	return creds, nil
}
