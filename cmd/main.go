package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/logger"
)

var (
	configFile string

	rootCmd = &cobra.Command{
		Use:           "fseventmon",
		Short:         "Watch file system activity through FSEvents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yml", "specify configuration file for service.")
}

func newLogger(name string) (*log.Logger, *logger.ColorLogger) {
	lg := log.New(os.Stdout, name+" --> ", log.Ldate|log.Lmicroseconds)
	return lg, logger.NewColorLogger(lg, !term.IsTerminal(int(os.Stdout.Fd())))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		_, clg := newLogger("fseventmon")
		clg.Errorf("error fseventmon : %v", err)
		stop()
		os.Exit(1)
	}
}
