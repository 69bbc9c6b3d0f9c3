package cli

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

// DefaultAPIURL — адрес API, если не задан ни флаг, ни EXTRACT_API_URL.
const DefaultAPIURL = "http://localhost:8080"

// NewRootCmd собирает корневую команду extract.
func NewRootCmd(version string, stdout, stderr io.Writer) *cobra.Command {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "extract",
		Short:         "Extract CLI — operator tool for the extraction engine",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	defaultURL := DefaultAPIURL
	if v := os.Getenv("EXTRACT_API_URL"); v != "" {
		defaultURL = v
	}
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *Client { return NewClient(apiURL) }
	outputFn := func() *Output { return NewOutput(jsonOutput, stdout, stderr) }

	rootCmd.AddCommand(
		NewRequestCmd(clientFn, outputFn),
		NewScheduleCmd(clientFn, outputFn),
		NewJobCmd(clientFn, outputFn),
		NewPluginCmd(clientFn, outputFn),
		NewConnectorCmd(clientFn, outputFn),
	)

	return rootCmd
}
