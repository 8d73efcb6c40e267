package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func addFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("format", "F", "text", "Format to use (text/json/yaml)")
}

// printFormatted prints data as JSON or YAML, or calls text for the
// human readable form.
func printFormatted(cmd *cobra.Command, data any, text func()) {
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "text":
		text()
	case "json":
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
		fmt.Println(string(out))
	case "yaml":
		out, err := toYAML(data)
		if err != nil {
			slog.Error(err.Error())
			os.Exit(1)
		}
		fmt.Print(string(out))
	default:
		slog.Error(fmt.Sprintf("unknown format %q", format))
		os.Exit(1)
	}
}

// toYAML renders data with the same field names as its JSON form.
func toYAML(data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}
