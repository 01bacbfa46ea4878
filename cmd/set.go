package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jake-scott/kasa-cli/internal/pkg/kasaapi"
	"github.com/jake-scott/kasa-cli/internal/pkg/logging"
	"github.com/jake-scott/kasa-cli/internal/pkg/report"
)

var _setCmdOpts struct {
	alias        string
	state        string
	reportKind   string
	slotsDir     string
	mqttBroker   string
	mqttTopic    string
	mqttClientID string
	mqttUsername string
	mqttPassword string
	mqttQoS      uint8
	mqttRetained bool
	mqttTimeout  time.Duration
}

var setCmd = &cobra.Command{
	Use:   "set [alias] [ON|OFF]",
	Short: "Switch a device on or off",
	Args:  cobra.MaximumNArgs(2),

	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindReportFlags(cmd)
		if len(args) > 0 {
			viper.Set("device.alias", args[0])
		}
		if len(args) > 1 {
			viper.Set("device.state", args[1])
		}
		return checkRequiredFlags("cloud.username", "cloud.password", "device.alias", "device.state")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return doSet(viper.GetString("device.alias"), viper.GetString("device.state"))
	},
}

var onCmd = &cobra.Command{
	Use:   "on <alias>",
	Short: "Switch a device on",
	Args:  cobra.ExactArgs(1),

	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindReportFlags(cmd)
		return checkRequiredFlags("cloud.username", "cloud.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return doSet(args[0], string(kasaapi.DeviceStateOn))
	},
}

var offCmd = &cobra.Command{
	Use:   "off <alias>",
	Short: "Switch a device off",
	Args:  cobra.ExactArgs(1),

	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindReportFlags(cmd)
		return checkRequiredFlags("cloud.username", "cloud.password")
	},

	RunE: func(cmd *cobra.Command, args []string) error {
		return doSet(args[0], string(kasaapi.DeviceStateOff))
	},
}

func init() {
	setCmd.Flags().StringVar(&_setCmdOpts.alias, "alias", "", "alias of the device, as shown in the Kasa app")
	setCmd.Flags().StringVar(&_setCmdOpts.state, "state", "", "desired state, ON or OFF")
	errPanic(viper.GetViper().BindPFlag("device.alias", setCmd.Flags().Lookup("alias")))
	errPanic(viper.GetViper().BindPFlag("device.state", setCmd.Flags().Lookup("state")))

	// reporting applies to all three commands
	for _, c := range []*cobra.Command{setCmd, onCmd, offCmd} {
		c.Flags().StringVar(&_setCmdOpts.reportKind, "report", report.KindConsole, "how to report the result: console, slots or mqtt")
		c.Flags().StringVar(&_setCmdOpts.slotsDir, "slots-dir", "", "directory for the kasaok/kasaerror result files (slots reporter)")
		c.Flags().StringVar(&_setCmdOpts.mqttBroker, "mqtt-broker", "", "MQTT broker URL, eg. tcp://localhost:1883 (mqtt reporter)")
		c.Flags().StringVar(&_setCmdOpts.mqttTopic, "mqtt-topic", "kasa/result", "MQTT topic for the result (mqtt reporter)")
		c.Flags().StringVar(&_setCmdOpts.mqttClientID, "mqtt-client-id", "", "MQTT client ID, random if not set")
		c.Flags().StringVar(&_setCmdOpts.mqttUsername, "mqtt-username", "", "MQTT user name")
		c.Flags().StringVar(&_setCmdOpts.mqttPassword, "mqtt-password", "", "MQTT password")
		c.Flags().Uint8Var(&_setCmdOpts.mqttQoS, "mqtt-qos", 1, "MQTT QoS for the result message")
		c.Flags().BoolVar(&_setCmdOpts.mqttRetained, "mqtt-retained", false, "publish the result as a retained message")
		c.Flags().DurationVar(&_setCmdOpts.mqttTimeout, "mqtt-timeout", time.Second*10, "MQTT connect/publish timeout")

		rootCmd.AddCommand(c)
	}
}

// bindReportFlags points the report.* keys at the flags of the command that
// is actually running; the three commands share the same key names
func bindReportFlags(cmd *cobra.Command) {
	errPanic(viper.GetViper().BindPFlag("report.kind", cmd.Flags().Lookup("report")))
	errPanic(viper.GetViper().BindPFlag("report.slots-dir", cmd.Flags().Lookup("slots-dir")))
	errPanic(viper.GetViper().BindPFlag("report.mqtt.broker", cmd.Flags().Lookup("mqtt-broker")))
	errPanic(viper.GetViper().BindPFlag("report.mqtt.topic", cmd.Flags().Lookup("mqtt-topic")))
	errPanic(viper.GetViper().BindPFlag("report.mqtt.client-id", cmd.Flags().Lookup("mqtt-client-id")))
	errPanic(viper.GetViper().BindPFlag("report.mqtt.username", cmd.Flags().Lookup("mqtt-username")))
	errPanic(viper.GetViper().BindPFlag("report.mqtt.password", cmd.Flags().Lookup("mqtt-password")))
	errPanic(viper.GetViper().BindPFlag("report.mqtt.qos", cmd.Flags().Lookup("mqtt-qos")))
	errPanic(viper.GetViper().BindPFlag("report.mqtt.retained", cmd.Flags().Lookup("mqtt-retained")))
	errPanic(viper.GetViper().BindPFlag("report.mqtt.timeout", cmd.Flags().Lookup("mqtt-timeout")))
}

func reportOptions() report.Options {
	return report.Options{
		Kind:     viper.GetString("report.kind"),
		SlotsDir: viper.GetString("report.slots-dir"),
		MQTT: report.MQTTConfig{
			Broker:   viper.GetString("report.mqtt.broker"),
			Topic:    viper.GetString("report.mqtt.topic"),
			ClientID: viper.GetString("report.mqtt.client-id"),
			Username: viper.GetString("report.mqtt.username"),
			Password: viper.GetString("report.mqtt.password"),
			QoS:      uint8(viper.GetUint("report.mqtt.qos")),
			Retained: viper.GetBool("report.mqtt.retained"),
			Timeout:  viper.GetDuration("report.mqtt.timeout"),
		},
	}
}

// runSet is the whole device command pipeline: login, device list, lookup,
// dispatch, validation
func runSet(ctl kasaapi.DeviceController, alias string, stateStr string) error {
	state, err := kasaapi.ParseDeviceState(stateStr)
	if err != nil {
		return err
	}

	return ctl.SetDeviceState(alias, state)
}

func doSet(alias string, state string) error {
	rep, err := report.New(reportOptions(), report.Invocation{Alias: alias, State: state})
	if err != nil {
		return err
	}

	// the host's exit signal, whatever happened
	defer func() {
		if err := rep.Close(); err != nil {
			logging.Logger(nil).WithError(err).Warn("closing reporter")
		}
	}()

	if err := runSet(newSession(context.Background()), alias, state); err != nil {
		logging.Logger(nil).WithError(err).Debugf("setting [%s] to %s", alias, state)
		if rerr := rep.Failure(err); rerr != nil {
			logging.Logger(nil).WithError(rerr).Error("reporting failure")
			return err
		}
		return reportedError{err}
	}

	return rep.Success()
}
