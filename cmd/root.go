package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "menu-auth",
	Short: "Restaurant menu account service",
	Long:  `Account and credential service for the restaurant menu backend: registration, login, email verification and password reset over HTTP.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
