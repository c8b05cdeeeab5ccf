package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "whatsapp-gateway"

var rootCmd = &cobra.Command{
	Use:   serviceName,
	Short: "WhatsApp Cloud API gateway for the storefront",
	Long: `whatsapp-gateway answers the WhatsApp Cloud API webhook, replies to
customers, forwards inbound events to the main API and lets operators send
one-off messages and broadcasts.

Configuration comes from the environment, optionally layered over the YAML
file named by CONFIG_FILE.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
