package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"reportpush/pkg/channel"
	"reportpush/pkg/config"
	"reportpush/pkg/media"

	"github.com/spf13/cobra"
)

var (
	sendText    string
	sendImage   string
	sendFile    string
	sendTarget  string
	sendMention string
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a one-off message through the enabled channels",
	Long:  "Sends a single text, image, or file to the enabled channels without going through a task. Handy for verifying webhook keys and channel setup.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		if sendText == "" && sendImage == "" && sendFile == "" {
			fmt.Println("nothing to send: pass --text, --image, or --file")
			os.Exit(1)
		}

		cfg, appLogger, err := setup()
		if err != nil {
			fmt.Printf("%v\n", err)
			return
		}
		log := appLogger.With("component", "cmd.send")

		notifiers, err := enabledNotifiers(cfg, appLogger)
		if err != nil {
			log.Error("Channel configuration invalid", "error", err)
			return
		}

		ctx := context.Background()
		for _, notifier := range notifiers {
			if err := sendThrough(ctx, notifier); err != nil {
				log.Error("Send failed", "channel", notifier.Name(), "error", err)
				os.Exit(1)
			}
			log.Info("Sent", "channel", notifier.Name(), "target", sendTarget)
		}
	},
}

// sendThrough pushes whichever payloads were requested to one channel.
func sendThrough(ctx context.Context, notifier channel.Notifier) error {
	if sendText != "" {
		msg := channel.Text{
			Content:        sendText,
			MentionedUsers: config.ParseCSV(sendMention),
		}
		if err := notifier.SendText(ctx, sendTarget, msg); err != nil {
			return fmt.Errorf("send text: %w", err)
		}
	}

	if sendImage != "" {
		snap, err := media.LoadSnapshot(sendImage)
		if err != nil {
			return err
		}
		if err := notifier.SendImage(ctx, sendTarget, snap); err != nil {
			return fmt.Errorf("send image: %w", err)
		}
	}

	if sendFile != "" {
		content, err := os.ReadFile(sendFile)
		if err != nil {
			return fmt.Errorf("read file %s: %w", sendFile, err)
		}
		file := channel.File{
			FileName: filepath.Base(sendFile),
			Content:  content,
		}
		if err := notifier.SendFile(ctx, sendTarget, file); err != nil {
			return fmt.Errorf("send file: %w", err)
		}
	}

	return nil
}

func init() {
	sendCmd.Flags().StringVar(&sendText, "text", "", "text message to send")
	sendCmd.Flags().StringVar(&sendImage, "image", "", "path to a JPEG or PNG image to send")
	sendCmd.Flags().StringVar(&sendFile, "file", "", "path to a file to upload and send")
	sendCmd.Flags().StringVar(&sendTarget, "target", "", "named target from config (defaults to the channel default)")
	sendCmd.Flags().StringVar(&sendMention, "mention", "", "comma-separated user IDs to mention with a text message")
	rootCmd.AddCommand(sendCmd)
}
