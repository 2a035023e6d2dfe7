package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// passwordEnv is read when --password is not given.
const passwordEnv = "PULSEDECK_PASSWORD"

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and remember the session",
	Long: `Sign in to the backend with a username and password.

The token is stored using the configured storage driver so later commands
reuse it. The password is read from --password or, if that is empty, from
the PULSEDECK_PASSWORD environment variable.

Example:
  pulsedeck login -u admin
  PULSEDECK_PASSWORD=secret pulsedeck login -u admin -c pulsedeck.yaml`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the session",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)

	loginCmd.Flags().StringP("username", "u", "", "username (required)")
	loginCmd.Flags().StringP("password", "p", "", "password (default $"+passwordEnv+")")
	_ = loginCmd.MarkFlagRequired("username")
}

func runLogin(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = os.Getenv(passwordEnv)
	}
	if password == "" {
		return errors.New("password required: use --password or set " + passwordEnv)
	}

	c, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.dash.Login(cmd.Context(), username, password); err != nil {
		if s := c.dash.Session(); s.Error != nil {
			return errors.New(*s.Error)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", c.dash.Session().User.Username)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	c, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	// revalidate first so the backend can invalidate the token
	if err := c.dash.CheckAuth(cmd.Context()); err != nil {
		c.logger.Debug("stored session already invalid", "error", err)
	}
	if err := c.dash.Logout(cmd.Context()); err != nil {
		c.logger.Warn("server-side logout failed, local session cleared", "error", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	c, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.requireSession(cmd.Context()); err != nil {
		return err
	}

	u := c.dash.Session().User
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s\n", u.Username)
	if u.Email != "" {
		fmt.Fprintf(out, "  email:   %s\n", u.Email)
	}
	fmt.Fprintf(out, "  backend: %s\n", c.cfg.APIBase)
	return nil
}
