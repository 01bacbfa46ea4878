package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/kasa-cli/internal/pkg/kasaapi"
)

var _listCmdOpts struct {
	asJSON bool
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the devices registered to the account",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doList(newSession(context.Background()), os.Stdout)
	},

	PreRunE: func(cmd *cobra.Command, args []string) error {
		return checkRequiredFlags("cloud.username", "cloud.password")
	},
}

func init() {
	listCmd.Flags().BoolVar(&_listCmdOpts.asJSON, "json", false, "print the device list as JSON")
	errPanic(viper.GetViper().BindPFlag("list.json", listCmd.Flags().Lookup("json")))

	rootCmd.AddCommand(listCmd)
}

func doList(ctl kasaapi.DeviceController, out io.Writer) error {
	devices, err := ctl.Devices()
	if err != nil {
		return err
	}

	if viper.GetBool("list.json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "    ")
		return enc.Encode(devices)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ALIAS\tTYPE\tMODEL\tSTATUS\tDEVICE ID")
	for _, d := range devices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", d.Alias, d.DeviceType, d.DeviceModel, d.Status, d.DeviceID)
	}

	return tw.Flush()
}
