package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/kasa-cli/internal/pkg/logging"
	"github.com/jake-scott/kasa-cli/version"
)

var _versionCmdOpts struct {
	asJSON bool
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the version and the Kasa cloud settings in effect",

	RunE: func(cmd *cobra.Command, args []string) error {
		return doVersion(os.Stdout)
	},
}

func init() {
	versionCmd.Flags().BoolVar(&_versionCmdOpts.asJSON, "json", false, "print as JSON")
	errPanic(viper.GetViper().BindPFlag("version.json", versionCmd.Flags().Lookup("json")))

	rootCmd.AddCommand(versionCmd)
}

// versionInfo never carries credentials, only whether they are configured
type versionInfo struct {
	Version      string `json:"version"`
	CloudURL     string `json:"cloudUrl"`
	CloudTimeout string `json:"cloudTimeout"`
	CloudUser    string `json:"cloudUser,omitempty"`
	HasPassword  bool   `json:"hasPassword"`
	ReportKind   string `json:"report,omitempty"`
	Instance     string `json:"instance"`
	ConfigFile   string `json:"configFile,omitempty"`
}

func currentVersionInfo() versionInfo {
	return versionInfo{
		Version:      version.Version,
		CloudURL:     viper.GetString("cloud.url"),
		CloudTimeout: viper.GetDuration("cloud.timeout").String(),
		CloudUser:    viper.GetString("cloud.username"),
		HasPassword:  viper.GetString("cloud.password") != "",
		ReportKind:   viper.GetString("report.kind"),
		Instance:     logging.InstanceID(),
		ConfigFile:   viper.ConfigFileUsed(),
	}
}

func doVersion(out io.Writer) error {
	info := currentVersionInfo()

	if viper.GetBool("version.json") {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "    ")
		return enc.Encode(info)
	}

	fmt.Fprintf(out, "kasa-cli version %s\n", info.Version)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "  cloud:\t%s\n", info.CloudURL)
	fmt.Fprintf(tw, "  timeout:\t%s\n", info.CloudTimeout)
	if info.CloudUser != "" {
		fmt.Fprintf(tw, "  user:\t%s\n", info.CloudUser)
	}
	if info.ConfigFile != "" {
		fmt.Fprintf(tw, "  config:\t%s\n", info.ConfigFile)
	}

	return tw.Flush()
}
