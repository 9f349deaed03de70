package main

import (
	"fmt"
	runtimedebug "runtime/debug"

	"github.com/spf13/cobra"
)

// set by goreleaser, falls back to module build info
var version = ""

// newVersionCommand prints the build version
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the fixrc version",
		Run: func(cmd *cobra.Command, args []string) {
			v := version
			if v == "" {
				if info, ok := runtimedebug.ReadBuildInfo(); ok && info.Main.Version != "" {
					v = info.Main.Version
				} else {
					v = "devel"
				}
			}
			fmt.Println("fixrc " + v)
		},
	}
}
