package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lattiq/courier"
)

var verifyCmd = &cobra.Command{
	Use:   "verify [flags] <address>",
	Short: "Request verification of an address with the first driver of a group",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		courier.PrintVersion(cmd.OutOrStdout())
	},
}

func init() {
	verifyCmd.Flags().String("group", courier.DefaultGroup, "Mailer group whose driver performs the verification")
}

func runVerify(cmd *cobra.Command, args []string) error {
	src, logger, err := setup(cmd)
	if err != nil {
		return err
	}

	group, _ := cmd.Flags().GetString("group")
	m, err := courier.New(courier.DefaultConfig(),
		courier.WithConfigSource(src),
		courier.WithLogger(logger),
		courier.WithGroup(group),
	)
	if err != nil {
		return err
	}

	address, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	if !m.RequestEmailVerification(cmd.Context(), address) {
		return printError(cmd, "verify", m.LastError())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "verification requested for %s\n", address.Email())
	return nil
}
