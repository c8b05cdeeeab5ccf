package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/whatsapp-gateway/internal/common"
	"github.com/example/whatsapp-gateway/internal/whatsapp"
)

var (
	sendTo     string
	sendText   string
	recipients []string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send one text message through the Cloud API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendTo == "" || sendText == "" {
			return errors.New("--to and --message are required")
		}
		cfg, err := common.LoadConfig(serviceName)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := common.NewLogger(cfg.ServiceName, cfg.LogLevel)

		id, ok := whatsapp.NewCloudSender(cfg, logger).SendText(cmd.Context(), sendTo, sendText, "")
		if !ok {
			return errors.New("message not sent")
		}
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var broadcastCmd = &cobra.Command{
	Use:   "broadcast",
	Short: "Send one text message to several recipients, one at a time",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sendText == "" {
			return errors.New("--message is required")
		}
		cfg, err := common.LoadConfig(serviceName)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger := common.NewLogger(cfg.ServiceName, cfg.LogLevel)

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		b := &whatsapp.Broadcaster{
			Sender: whatsapp.NewCloudSender(cfg, logger),
			Delay:  cfg.BroadcastDelay,
			Logger: logger,
		}
		sent := b.Broadcast(ctx, sendText, recipients)
		fmt.Fprintf(cmd.OutOrStdout(), "Message sent to %d of %d users\n", sent, len(recipients))
		return nil
	},
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "recipient phone number")
	sendCmd.Flags().StringVarP(&sendText, "message", "m", "", "message text")

	broadcastCmd.Flags().StringSliceVar(&recipients, "to", nil, "recipient phone numbers (repeat or comma separate)")
	broadcastCmd.Flags().StringVarP(&sendText, "message", "m", "", "message text")

	rootCmd.AddCommand(sendCmd, broadcastCmd)
}
