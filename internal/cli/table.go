package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shaiso/Gatekeeper/internal/gating"
)

// NewTableCmd создаёт группу команд для gating-таблицы.
func NewTableCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Inspect the gating table",
	}

	cmd.AddCommand(
		newTableShowCmd(clientFn, outputFn),
		newTableValidateCmd(outputFn),
	)

	return cmd
}

func newTableShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the gating table loaded by the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			table, err := client.GetTable()
			if err != nil {
				return err
			}

			headers := []string{"JOB", "REF", "GUARD", "NEEDS", "SECRETS", "BEST_EFFORT"}
			rows := make([][]string, len(table.Jobs))
			for i, j := range table.Jobs {
				bestEffort := ""
				if j.BestEffort {
					bestEffort = "yes"
				}
				rows[i] = []string{j.Name, j.Ref, j.Guard, joinOrDash(j.Needs), joinOrDash(j.Secrets), bestEffort}
			}

			out.Print(headers, rows, table)
			return nil
		},
	}
}

// newTableValidateCmd валидирует gating-таблицу локально, без сервера.
func newTableValidateCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate PATH",
		Short: "Validate a gating table file locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			table, err := gating.Load(args[0])
			if err != nil {
				return fmt.Errorf("validation failed: %w", err)
			}

			out.Success(fmt.Sprintf("OK: %d flags, %d jobs, %d schedules",
				len(table.Flags), len(table.Jobs), len(table.Schedules)))
			return nil
		},
	}
}
