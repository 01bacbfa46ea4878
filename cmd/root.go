package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/kasa-cli/internal/pkg/kasaapi"
	"github.com/jake-scott/kasa-cli/internal/pkg/logging"
)

var _rootCmdOpts struct {
	configFile string
	debug      bool
	username   string
	password   string
	cloudURL   string
	timeout    time.Duration
	logLevel   string
	logFormat  string
	logFile    string
}

var rootCmd = &cobra.Command{
	Use:   "kasa-cli",
	Short: "Switch TP-Link Kasa plugs and bulbs through the Kasa cloud",

	SilenceErrors: true,
	SilenceUsage:  true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Configure(viper.GetViper())
	},
}

// reportedError has already been handed to the host by a reporter and must
// not be printed a second time
type reportedError struct {
	error
}

func (e reportedError) Unwrap() error {
	return e.error
}

// Execute runs the root command, exiting non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&_rootCmdOpts.configFile, "config", "", "config file (default is $HOME/.kasa-cli.yaml)")
	pf.BoolVar(&_rootCmdOpts.debug, "debug", false, "enable debug logging")
	pf.StringVar(&_rootCmdOpts.username, "username", "", "Kasa cloud account user name (e-mail)")
	pf.StringVar(&_rootCmdOpts.password, "password", "", "Kasa cloud account password")
	pf.StringVar(&_rootCmdOpts.cloudURL, "cloud-url", kasaapi.DefaultCloudURL, "Kasa cloud API endpoint")
	pf.DurationVar(&_rootCmdOpts.timeout, "timeout", time.Second*15, "maximum duration of each Kasa cloud call, eg. 1m or 10s")
	pf.StringVar(&_rootCmdOpts.logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&_rootCmdOpts.logFormat, "log-format", "text", "log format (text or json)")
	pf.StringVar(&_rootCmdOpts.logFile, "log-file", "stderr", "log destination: stderr, stdout or a file name")

	errPanic(viper.GetViper().BindPFlag("cloud.username", pf.Lookup("username")))
	errPanic(viper.GetViper().BindPFlag("cloud.password", pf.Lookup("password")))
	errPanic(viper.GetViper().BindPFlag("cloud.url", pf.Lookup("cloud-url")))
	errPanic(viper.GetViper().BindPFlag("cloud.timeout", pf.Lookup("timeout")))
	errPanic(viper.GetViper().BindPFlag("logging.level", pf.Lookup("log-level")))
	errPanic(viper.GetViper().BindPFlag("logging.format", pf.Lookup("log-format")))
	errPanic(viper.GetViper().BindPFlag("logging.location", pf.Lookup("log-file")))
}

func errPanic(err error) {
	if err != nil {
		panic(err)
	}
}

func initConfig() {
	if _rootCmdOpts.debug {
		logrus.SetLevel(logrus.DebugLevel)
	}

	// KASA_CLOUD_USERNAME, KASA_CLOUD_PASSWORD, KASA_DEVICE_ALIAS etc.
	viper.SetEnvPrefix("kasa")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if _rootCmdOpts.configFile != "" {
		viper.SetConfigFile(_rootCmdOpts.configFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			logging.Logger(nil).WithError(err).Warn("finding home directory")
			return
		}

		viper.AddConfigPath(home)
		viper.SetConfigName(".kasa-cli")
	}

	if err := viper.ReadInConfig(); err == nil {
		logging.Logger(nil).Debugf("using config file: %s", viper.ConfigFileUsed())
	} else if _rootCmdOpts.configFile != "" {
		logging.Logger(nil).WithError(err).Errorf("reading config file %s", _rootCmdOpts.configFile)
	}
}

func checkRequiredFlags(needFlags ...string) error {
	missingFlags := []string{}

	for _, f := range needFlags {
		if !viper.IsSet(f) || viper.GetString(f) == "" {
			missingFlags = append(missingFlags, f)
		}
	}

	if len(missingFlags) > 0 {
		itemPlural := "item"
		if len(missingFlags) > 1 {
			itemPlural = "items"
		}
		return fmt.Errorf("required config %s `%s` not set", itemPlural, strings.Join(missingFlags, "`, `"))
	}

	return nil
}

// newSession builds a logged-out session from the current configuration
func newSession(ctx context.Context) kasaapi.DeviceController {
	return kasaapi.NewSession(viper.GetString("cloud.username"), viper.GetString("cloud.password")).
		WithCloudURL(viper.GetString("cloud.url")).
		WithContext(ctx).
		WithTimeout(viper.GetDuration("cloud.timeout"))
}
