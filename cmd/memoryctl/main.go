package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"memorymap/internal/client"
	"memorymap/internal/config"
	"memorymap/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	apiFlag     string
	tokenFlag   string
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:          "memoryctl",
	Short:        "Command line client for the memory map API.",
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Start an anonymous session and print its token",
	Long: `Starts an anonymous session. Pass the printed token to later commands
with --token or MEMORYCTL_TOKEN.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		sess, err := c.StartSession(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, sess)
	},
}

var authorizeCmd = &cobra.Command{
	Use:   "authorize",
	Short: "Add the current session to the poster allow-list",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		c, err := newClient()
		if err != nil {
			return err
		}
		if c.Token() == "" {
			return fmt.Errorf("a session token is required; run memoryctl session first")
		}
		if err := c.Authorize(cmd.Context(), key); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Authorization successful.")
		return nil
	},
}

func newLogger() *zap.Logger {
	level := "warn"
	if verboseFlag {
		level = "debug"
	}
	log, err := logging.New(level, "console")
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func newClient() (*client.Client, error) {
	if apiFlag == "" {
		return nil, fmt.Errorf("--api is required")
	}
	c := client.New(apiFlag, newLogger())
	token := tokenFlag
	if token == "" {
		token = os.Getenv("MEMORYCTL_TOKEN")
	}
	c.SetToken(token)
	return c, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func initCmd() {
	rootCmd.PersistentFlags().StringVar(&apiFlag, "api", config.ClientBaseURL(), "API base url (default from API_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "session token (default from MEMORYCTL_TOKEN)")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "debug logging")

	authorizeCmd.Flags().String("key", "", "authorization key")
	_ = authorizeCmd.MarkFlagRequired("key")

	initMemoriesCmd()
	rootCmd.AddCommand(sessionCmd, authorizeCmd, postCmd, deleteCmd, listCmd, watchCmd)
}

func main() {
	initCmd()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
