package cmd

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is set via ldflags at build time. When built from a module
// checkout without ldflags it falls back to the VCS revision.
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ragcore version",
	Run: func(cmd *cobra.Command, args []string) {
		v := Version
		if v == "dev" {
			if info, ok := debug.ReadBuildInfo(); ok {
				for _, s := range info.Settings {
					if s.Key == "vcs.revision" && len(s.Value) >= 12 {
						v = "dev (" + s.Value[:12] + ")"
					}
				}
			}
		}
		cmd.Printf("ragcore %s\n", v)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
