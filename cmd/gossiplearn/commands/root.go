package commands

import (
	"github.com/spf13/cobra"

	"github.com/gossiplearn/gossiplearn/src/config"
)

var _config = config.NewDefaultConfig()

//RootCmd is the root command for the simulator
var RootCmd = &cobra.Command{
	Use:              "gossiplearn",
	Short:            "gossip learning simulator",
	TraverseChildren: true,
}

func init() {
	RootCmd.AddCommand(
		NewRunCmd(),
		VersionCmd,
	)
}
