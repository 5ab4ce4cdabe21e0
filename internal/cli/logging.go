package cli

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
	"k8s.io/klog/v2"
	"k8s.io/klog/v2/textlogger"
)

// initLogging configures klog the way the teacher's cmd/root.go does:
// a textlogger at the requested verbosity, writing to stdout, plus the
// traditional -v flag set as a backup for any code that still checks
// it directly.
func initLogging() {
	logLevel := viper.GetInt("log-level")
	if logLevel < 0 {
		logLevel = 2
	}

	config := textlogger.NewConfig(
		textlogger.Output(os.Stdout),
		textlogger.Verbosity(logLevel),
	)
	logger := textlogger.NewLogger(config)
	klog.SetLoggerWithOptions(logger)

	flagSet := flag.NewFlagSet("minifly", flag.ContinueOnError)
	klog.InitFlags(flagSet)
	if err := flagSet.Parse([]string{"--v", strconv.Itoa(logLevel)}); err != nil {
		fmt.Fprintf(os.Stdout, "error parsing log level: %v\n", err)
	}

	klog.V(0).Infof("logging initialized with level %d", logLevel)
}
