package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/budgetml/budgetml/internal/constants"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the budgetml version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s %s\n", constants.ProjectName, *constants.GetVersion())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
