package cli

import (
	"strconv"

	"github.com/spf13/cobra"
)

// NewPluginCmd создаёт команды каталога плагинов и connectors.
func NewPluginCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List available connector and task plugins",
		RunE: func(cmd *cobra.Command, args []string) error {
			plugins, err := clientFn().ListPlugins(refresh)
			if err != nil {
				return err
			}

			headers := []string{"KIND", "CODE", "LABEL", "DESCRIPTION"}
			var rows [][]string
			for _, p := range plugins.Connectors {
				rows = append(rows, []string{"connector", p.Code, p.Label, p.Description})
			}
			for _, p := range plugins.Tasks {
				rows = append(rows, []string{"task", p.Code, p.Label, p.Description})
			}

			outputFn().Print(headers, rows, plugins)
			return nil
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "Rescan plugin sources before listing")
	return cmd
}

// NewConnectorCmd создаёт команду списка connectors.
func NewConnectorCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var activeOnly bool

	cmd := &cobra.Command{
		Use:   "connectors",
		Short: "List configured connectors and their last import",
		RunE: func(cmd *cobra.Command, args []string) error {
			connectors, err := clientFn().ListConnectors(activeOnly)
			if err != nil {
				return err
			}

			headers := []string{"ID", "CODE", "LABEL", "ACTIVE", "ERRORS", "LAST_IMPORT", "MESSAGE"}
			rows := make([][]string, len(connectors))
			for i, c := range connectors {
				rows[i] = []string{
					c.ID, c.Code, c.Label, strconv.FormatBool(c.Active),
					strconv.Itoa(c.ImportErrorCount), c.LastImportAt, c.LastImportMessage,
				}
			}

			outputFn().Print(headers, rows, connectors)
			return nil
		},
	}

	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only active connectors")
	return cmd
}
