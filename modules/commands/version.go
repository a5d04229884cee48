package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"focustrack/modules"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s version %s\n", modules.AppName, modules.AppVersion)
		fmt.Printf("Build: %s (%s)\n", modules.BuildRevision(), runtime.Version())
	},
}
