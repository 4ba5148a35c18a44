package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ManouchehrRasoulli/fseventmon/pkg"
	"github.com/ManouchehrRasoulli/fseventmon/pkg/user"
)

var (
	pwFile string

	userCmd = &cobra.Command{
		Use:   "user",
		Short: "Manage the accounts allowed to subscribe to the event broadcast",
	}

	userAddCmd = &cobra.Command{
		Use:   "add <username>",
		Short: "Add an account, the password is prompted for",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			um, err := openUsers()
			if err != nil {
				return err
			}

			p := newPrompter(os.Stdin, cmd.ErrOrStderr())
			password, err := p.Password(fmt.Sprintf("Password for %s: ", args[0]))
			if err != nil {
				return err
			}
			confirm, err := p.Password(fmt.Sprintf("Confirm password for %s: ", args[0]))
			if err != nil {
				return err
			}
			if password != confirm {
				return errors.New("password does not match")
			}

			if err := um.Add(user.Credential{Username: args[0], Password: password}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s added\n", args[0])
			return nil
		},
	}

	userDeleteCmd = &cobra.Command{
		Use:   "delete <username>",
		Short: "Delete an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			um, err := openUsers()
			if err != nil {
				return err
			}
			if !um.Exists(args[0]) {
				return fmt.Errorf("%w: %s", user.ErrUnknownUser, args[0])
			}
			if err := um.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s deleted\n", args[0])
			return nil
		},
	}
)

func init() {
	userCmd.PersistentFlags().StringVar(&pwFile, "pw-file", "", "password file, defaults to server.pw_file of the config.")
	userCmd.AddCommand(userAddCmd, userDeleteCmd)
	rootCmd.AddCommand(userCmd)
}

func openUsers() (*user.Manager, error) {
	file := pwFile
	if file == "" {
		cfg, err := pkg.ReadConfig(configFile)
		if err != nil {
			return nil, fmt.Errorf("no --pw-file and config %s unusable: %w", configFile, err)
		}
		file = cfg.Server.PwFile
	}
	if file == "" {
		return nil, errors.New("no password file configured")
	}
	return user.NewManager(file)
}
