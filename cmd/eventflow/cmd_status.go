package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's batch queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()

		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(daemonURL(cfg.ListenAddr) + "/status")
		if err != nil {
			return fmt.Errorf("daemon not reachable: %w", err)
		}
		defer resp.Body.Close()

		var st struct {
			IsProcessing bool `json:"isProcessing"`
			QueueLength  int  `json:"queueLength"`
			Batches      []struct {
				ID         string `json:"id"`
				EventCount int    `json:"eventCount"`
				Status     string `json:"status"`
				CreatedAt  string `json:"createdAt"`
			} `json:"batches"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return fmt.Errorf("decode status: %w", err)
		}

		fmt.Fprintf(os.Stdout, "processing: %v\nqueue length: %d\n", st.IsProcessing, st.QueueLength)
		for _, b := range st.Batches {
			fmt.Fprintf(os.Stdout, "  %s  %-10s  %4d events  created %s\n", b.ID, b.Status, b.EventCount, b.CreatedAt)
		}
		return nil
	},
}

// daemonURL turns a listen address like ":8844" into a local base URL.
func daemonURL(listenAddr string) string {
	addr := listenAddr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}
