// Gatekeeper CLI — инструмент командной строки для управления
// changes, runs и gating-таблицей через HTTP API.
//
// Использование:
//
//	gatekeeper [--api-url URL] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	change  Отправка событий об изменениях
//	run     Управление runs
//	table   Просмотр и валидация gating-таблицы
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Gatekeeper/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "gatekeeper",
		Short:         "Gatekeeper CLI — change-gated CI control tool",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "http://localhost:8080", "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewChangeCmd(clientFn, outputFn),
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewTableCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
