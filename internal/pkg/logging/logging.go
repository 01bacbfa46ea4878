package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	stdlog "log"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

/*
 *  Diagnostics logging for the CLI and the HTTP front end.  Command results
 *  for the host go through the report package, not through here.
 */

type ctxKey int

const (
	txnIDKey ctxKey = iota
)

// WithTxnID returns a context which carries a transaction ID into log lines
func WithTxnID(ctx context.Context, txnID string) context.Context {
	return context.WithValue(ctx, txnIDKey, txnID)
}

// TxnID returns the transaction ID stored in ctx, if any
func TxnID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	txnID, ok := ctx.Value(txnIDKey).(string)
	return txnID, ok
}

var (
	gEntry      *logrus.Entry
	gLogFile    *os.File
	gInstanceID string
)

// Logger returns the process logger, tagged with the transaction ID of ctx
func Logger(ctx context.Context) *logrus.Entry {
	if txnID, ok := TxnID(ctx); ok {
		return gEntry.WithField("txnid", txnID)
	}

	return gEntry
}

// InstanceID identifies this process run in logs and published results
func InstanceID() string {
	return gInstanceID
}

func init() {
	viper.SetDefault("logging.location", "stderr")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.level", "info")

	gInstanceID = uuid.New().String()
	gEntry = processEntry()
}

func processEntry() *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"pid":      os.Getpid(),
		"exe":      path.Base(os.Args[0]),
		"instance": gInstanceID,
	})
}

func openOutput(loc string) (io.Writer, error) {
	switch loc {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	}

	file, err := os.OpenFile(loc, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	if gLogFile != nil {
		gLogFile.Close()
	}
	gLogFile = file

	return file, nil
}

// Configure sets the log level, format and output location
func Configure(cfg *viper.Viper) error {
	out, err := openOutput(cfg.GetString("logging.location"))
	if err != nil {
		return err
	}
	logrus.SetOutput(out)
	gEntry = processEntry()

	// --debug wins over the configured level
	if !logrus.IsLevelEnabled(logrus.DebugLevel) {
		level := cfg.GetString("logging.level")
		val, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("bad log level: [%s]", level)
		}
		logrus.SetLevel(val)
	}

	switch format := cfg.GetString("logging.format"); format {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text", "":
		logrus.SetFormatter(&logrus.TextFormatter{})
	default:
		return fmt.Errorf("bad log format: [%s]", format)
	}

	// Anything using the standard logger ends up at debug level
	stdlog.SetOutput(gEntry.WriterLevel(logrus.DebugLevel))

	return nil
}
