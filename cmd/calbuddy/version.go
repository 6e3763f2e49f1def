package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/ternarybob/calbuddy/internal/common"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionJSON {
			out, err := json.MarshalIndent(map[string]string{
				"version": common.Version,
				"commit":  common.Revision(),
				"go":      runtime.Version(),
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "CalBuddy version %s\n", common.FullVersion())
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Output as JSON")
}
