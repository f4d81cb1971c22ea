package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Show version information",
	Annotations: map[string]string{skipConfigAnnotation: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		info := map[string]string{
			"version":  version,
			"go":       runtime.Version(),
			"platform": runtime.GOOS + "/" + runtime.GOARCH,
		}

		if jsonOutput {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format version info: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(output))
			return nil
		}

		fmt.Fprintf(cmd.OutOrStdout(), "sercha-ingest %s\n", info["version"])
		fmt.Fprintf(cmd.OutOrStdout(), "Platform: %s\n", info["platform"])
		fmt.Fprintf(cmd.OutOrStdout(), "Go: %s\n", info["go"])
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
}
