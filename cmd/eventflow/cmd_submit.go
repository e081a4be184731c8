package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVar(&submitFile, "file", "", "JSON file holding an array of events")
	submitCmd.Flags().StringVar(&submitUser, "user", "", "user id for the ad-hoc event")
}

var (
	submitFile string
	submitUser string
)

var submitCmd = &cobra.Command{
	Use:   "submit [event-name]",
	Short: "Submit an event, or a batch from a JSON file, to the running daemon",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := &http.Client{Timeout: 5 * time.Second}
		base := daemonURL(cfg.ListenAddr)

		if submitFile != "" {
			data, err := os.ReadFile(submitFile)
			if err != nil {
				return fmt.Errorf("read events file: %w", err)
			}
			return post(client, base+"/events/batch", data)
		}

		if len(args) == 0 {
			return fmt.Errorf("event name or --file required")
		}
		body := fmt.Sprintf(`{"eventName":%q,"userId":%q,"timestampMs":%d}`,
			args[0], submitUser, time.Now().UnixMilli())
		return post(client, base+"/events", []byte(body))
	},
}

func post(client *http.Client, url string, body []byte) error {
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, string(out))
	}
	fmt.Fprint(os.Stdout, string(out))
	return nil
}
