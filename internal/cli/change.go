package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewChangeCmd создаёт группу команд для событий об изменениях.
func NewChangeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "change",
		Short: "Submit change events",
	}

	cmd.AddCommand(
		newChangeSubmitCmd(clientFn, outputFn),
	)

	return cmd
}

func newChangeSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var baseRef string
	var headRef string
	var files []string
	var forceAll bool

	cmd := &cobra.Command{
		Use:   "submit CHANGE_ID",
		Short: "Submit a change event for gating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := SubmitChangeRequest{
				ChangeID: args[0],
				BaseRef:  baseRef,
				HeadRef:  headRef,
				Files:    files,
				ForceAll: forceAll,
			}

			resp, err := client.SubmitChange(req)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Change event accepted: %s", resp.EventID))
			out.Print(
				[]string{"EVENT_ID", "CHANGE_ID"},
				[][]string{{resp.EventID, resp.ChangeID}},
				resp,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseRef, "base", "", "Base revision for diff")
	cmd.Flags().StringVar(&headRef, "head", "", "Head revision of the change")
	cmd.Flags().StringSliceVar(&files, "file", nil, "Modified file path (repeatable)")
	cmd.Flags().BoolVar(&forceAll, "force-all", false, "Treat every classification flag as true")

	return cmd
}

// joinOrDash возвращает элементы через запятую или "-" для пустого списка.
func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
