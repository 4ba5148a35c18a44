package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ManouchehrRasoulli/fseventmon/pkg/client"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/logger"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/protocol"
)

var (
	tailOpts struct {
		username string
		password string
		prefix   string
		tls      bool
		insecure bool
	}

	tailCmd = &cobra.Command{
		Use:   "tail <address>",
		Short: "Print the records relayed by a running fseventmon server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return tail(cmd.Context(), args[0], cmd.OutOrStdout())
		},
	}
)

func init() {
	flags := tailCmd.Flags()
	flags.StringVarP(&tailOpts.username, "user", "u", "", "username when the server authenticates.")
	flags.StringVar(&tailOpts.password, "password", "", "password, prompted for when empty.")
	flags.StringVarP(&tailOpts.prefix, "prefix", "p", "", "only records under this path.")
	flags.BoolVar(&tailOpts.tls, "tls", false, "connect with TLS.")
	flags.BoolVar(&tailOpts.insecure, "insecure", false, "skip server certificate verification.")
	rootCmd.AddCommand(tailCmd)
}

func tail(ctx context.Context, address string, out io.Writer) error {
	lg, clg := newLogger("fseventmon tail")

	password := tailOpts.password
	if tailOpts.username != "" && password == "" {
		var err error
		if password, err = newPrompter(os.Stdin, os.Stderr).Password(fmt.Sprintf("Password for %s: ", tailOpts.username)); err != nil {
			return err
		}
	}

	var tlsCfg *tls.Config
	if tailOpts.tls {
		tlsCfg = &tls.Config{InsecureSkipVerify: tailOpts.insecure}
	}

	c := client.NewClient(address, tailOpts.username, password, tailOpts.prefix, tlsCfg, lg)
	go func() {
		<-ctx.Done()
		_ = c.Exit()
	}()

	clg.Printcf(logger.ColorGreen, "tail : connecting to %s", address)
	return c.Run(printPayload(out))
}

func printPayload(out io.Writer) func(protocol.EventPayload) {
	return func(e protocol.EventPayload) {
		fmt.Fprintf(out, "%s\t%d\t%s\t%s\t%s\n", e.Monitor, e.ID, e.Path, strings.Join(e.Actions, "|"), strings.Join(e.Item, "|"))
	}
}
