// Package cmd provides the journal-sink commands
package cmd

import (
	"github.com/relex/gotils/config"
)

func init() {
	config.AddParentCmdWithArgs("", "journal-sink replicates an append-only record journal from a remote source over TCP", &rootCmd, rootCmd.preRun, rootCmd.postRun)
	config.AddCmdWithArgs("tail", "Tail a remote source in memory mode and print incoming records", &tailCmd, tailCmd.run)
	config.AddCmdWithArgs("replicate", "Replicate a remote source into a local volatile journal, for source verification and soak testing", &replicateCmd, replicateCmd.run)
}

// Execute parses the command line and runs the specified command
func Execute() {
	// trigger init

	config.Execute()
}
