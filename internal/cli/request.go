package cli

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// NewRequestCmd создаёт группу команд для работы с запросами.
func NewRequestCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "request",
		Aliases: []string{"req"},
		Short:   "Inspect requests and act on stopped ones",
	}

	cmd.AddCommand(
		newRequestListCmd(clientFn, outputFn),
		newRequestShowCmd(clientFn, outputFn),
		newRequestHistoryCmd(clientFn, outputFn),
		newRequestActionCmd("resume", "Resume a request waiting in STANDBY", clientFn, outputFn),
		newRequestActionCmd("retry", "Retry the failed task of a request in ERROR", clientFn, outputFn),
		newRequestActionCmd("skip", "Skip the current task and continue", clientFn, outputFn),
		newRequestActionCmd("reject", "Reject a stopped request", clientFn, outputFn),
	)

	return cmd
}

var requestHeaders = []string{"ID", "ORDER", "PRODUCT", "STATUS", "TASK", "ERROR", "CREATED"}

func requestRow(r RequestResponse) []string {
	return []string{r.ID, r.OrderLabel, r.ProductLabel, r.Status, strconv.Itoa(r.TaskIndex), r.ErrorCode, r.CreatedAt}
}

func newRequestListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var opts ListRequestsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			requests, err := clientFn().ListRequests(opts)
			if err != nil {
				return err
			}

			rows := make([][]string, len(requests))
			for i, r := range requests {
				rows[i] = requestRow(r)
			}

			outputFn().Print(requestHeaders, rows, requests)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.ConnectorID, "connector-id", "", "Filter by connector ID")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (IMPORTED, RUNNING, STANDBY, ERROR, FINISHED, ...)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "Number of results to skip")

	return cmd
}

func newRequestShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show REQUEST_ID",
		Short: "Show request details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := clientFn().GetRequest(args[0])
			if err != nil {
				return err
			}

			out := outputFn()
			out.Print(requestHeaders, [][]string{requestRow(*req)}, req)
			if req.Message != "" && !out.jsonMode {
				out.Success("Message: " + req.Message)
			}
			return nil
		},
	}
}

func newRequestHistoryCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "history REQUEST_ID",
		Short: "Show request history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := clientFn().History(args[0])
			if err != nil {
				return err
			}

			headers := []string{"STEP", "TASK", "STATUS", "ACTOR", "MESSAGE", "STARTED"}
			rows := make([][]string, len(records))
			for i, h := range records {
				rows[i] = []string{strconv.Itoa(h.Step), h.TaskLabel, h.Status, h.Actor, h.Message, h.StartedAt}
			}

			outputFn().Print(headers, rows, records)
			return nil
		},
	}
}

func newRequestActionCmd(action, short string, clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var actor string
	var remark string

	cmd := &cobra.Command{
		Use:   action + " REQUEST_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if actor == "" {
				return fmt.Errorf("--actor is required")
			}

			req, err := clientFn().Act(args[0], ActionRequest{Action: action, Actor: actor, Remark: remark})
			if err != nil {
				return err
			}

			out := outputFn()
			out.Success(fmt.Sprintf("Request %s: %s", req.ID, req.Status))
			out.Print(requestHeaders, [][]string{requestRow(*req)}, req)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", os.Getenv("USER"), "Operator name recorded in history")
	if action == "reject" {
		cmd.Flags().StringVar(&remark, "remark", "", "Rejection remark sent back to the client")
	}

	return cmd
}
