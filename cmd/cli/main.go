package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/myrjola/directorscut/cmd/cli/chat"
	"github.com/myrjola/directorscut/cmd/cli/inspect"
	"github.com/myrjola/directorscut/internal/errors"
	"github.com/spf13/cobra"
)

func init() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.AddGroup(chat.Group)
	rootCmd.AddCommand(chat.NewCommand(os.LookupEnv))
	rootCmd.AddGroup(inspect.Group)
	rootCmd.AddCommand(inspect.NextStage, inspect.Scenarios)
}

var rootCmd = &cobra.Command{
	Use:  "directorscut-cli",
	Long: `Command line utilities for Director's Cut, a conversation with a film director about one day of your life`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
