package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsedeck"
)

const defaultEventLimit = 20

var servicesCmd = &cobra.Command{
	Use:   "services",
	Short: "List monitored services",
	RunE:  runServices,
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Ask the backend to discover containers as services",
	RunE:  runDiscover,
}

var startCmd = &cobra.Command{
	Use:   "start ID",
	Short: "Start the container behind a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runContainerAction(cmd, args[0], "start")
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop ID",
	Short: "Stop the container behind a service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runContainerAction(cmd, args[0], "stop")
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List recent events, newest first",
	RunE:  runEvents,
}

func init() {
	rootCmd.AddCommand(servicesCmd, discoverCmd, startCmd, stopCmd, eventsCmd)

	eventsCmd.Flags().IntP("limit", "n", defaultEventLimit, "maximum number of events to show (0 for all)")
}

func runServices(cmd *cobra.Command, args []string) error {
	c, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.requireSession(cmd.Context()); err != nil {
		return err
	}
	if err := c.dash.Invalidate(cmd.Context(), pulsedeck.QueryServices, pulsedeck.QueryStats); err != nil {
		return fmt.Errorf("failed to load services: %w", err)
	}

	snap := c.dash.ServicesSnapshot()
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderServices(snap.Services))
	if line := renderStats(snap.Stats); line != "" {
		fmt.Fprintln(out, line)
	}
	return nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	c, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.requireSession(cmd.Context()); err != nil {
		return err
	}
	res, err := c.dash.DiscoverServices(cmd.Context())
	if err != nil {
		return fmt.Errorf("discovery failed: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Discovered %d new service(s)\n", res.DiscoveredCount)
	fmt.Fprintln(out, renderServices(c.dash.Services()))
	return nil
}

func runContainerAction(cmd *cobra.Command, arg, action string) error {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return fmt.Errorf("invalid service id %q", arg)
	}

	c, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.requireSession(cmd.Context()); err != nil {
		return err
	}

	var res *pulsedeck.ActionResult
	switch action {
	case "start":
		res, err = c.dash.StartContainer(cmd.Context(), id)
	default:
		res, err = c.dash.StopContainer(cmd.Context(), id)
	}
	if err != nil {
		return fmt.Errorf("%s service %d: %w", action, id, err)
	}

	msg := res.Message
	if msg == "" {
		msg = res.Status
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Service %d: %s\n", id, msg)
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	if limit < 0 {
		return fmt.Errorf("limit cannot be negative")
	}

	c, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.requireSession(cmd.Context()); err != nil {
		return err
	}
	if err := c.dash.Invalidate(cmd.Context(), pulsedeck.QueryEvents); err != nil {
		return fmt.Errorf("failed to load events: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderEvents(c.dash.Events(), limit))
	return nil
}
