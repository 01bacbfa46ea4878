package logging

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxnID(t *testing.T) {
	_, ok := TxnID(context.Background())
	assert.False(t, ok)

	_, ok = TxnID(nil)
	assert.False(t, ok)

	ctx := WithTxnID(context.Background(), "abc")
	id, ok := TxnID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	assert.Equal(t, "abc", Logger(ctx).Data["txnid"])
	assert.NotContains(t, Logger(context.Background()).Data, "txnid")
	assert.Equal(t, InstanceID(), Logger(nil).Data["instance"])
}

func TestConfigure_FileJSON(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetFormatter(&logrus.TextFormatter{})
	defer logrus.SetLevel(logrus.InfoLevel)

	logrus.SetLevel(logrus.InfoLevel)
	logFile := filepath.Join(t.TempDir(), "kasa.log")

	cfg := viper.New()
	cfg.Set("logging.location", logFile)
	cfg.Set("logging.level", "warn")
	cfg.Set("logging.format", "json")

	require.NoError(t, Configure(cfg))
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())

	Logger(WithTxnID(context.Background(), "t-1")).Warn("plug offline")
	Logger(nil).Info("not written")

	b, err := ioutil.ReadFile(logFile)
	require.NoError(t, err)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &line))
	assert.Equal(t, "plug offline", line["msg"])
	assert.Equal(t, "t-1", line["txnid"])
	assert.Equal(t, InstanceID(), line["instance"])
}

func TestConfigure_Errors(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	tests := map[string]map[string]string{
		"bad level":  {"logging.level": "chatty", "logging.format": "text"},
		"bad format": {"logging.level": "info", "logging.format": "xml"},
	}

	for name, settings := range tests {
		t.Run(name, func(t *testing.T) {
			logrus.SetLevel(logrus.InfoLevel)

			cfg := viper.New()
			cfg.Set("logging.location", "stderr")
			for k, v := range settings {
				cfg.Set(k, v)
			}

			assert.Error(t, Configure(cfg))
		})
	}
}

func TestConfigure_DebugWins(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	logrus.SetLevel(logrus.DebugLevel)

	cfg := viper.New()
	cfg.Set("logging.level", "error")
	require.NoError(t, Configure(cfg))

	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}
