package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running daemon for its offline state",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get("http://" + statusAddr + "/v1/status")
		if err != nil {
			return fmt.Errorf("failed to reach daemon at %s: %w", statusAddr, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("daemon returned %s", resp.Status)
		}

		var body statusResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		cmd.Printf("Status:        %s\n", body.Status)
		cmd.Printf("Can go online: %v\n", body.CanGoOnline)
		cmd.Printf("Offline mode:  %v\n", body.OfflineMode)
		if body.LastOnlineAt != nil {
			cmd.Printf("Last online:   %s\n", body.LastOnlineAt.Format(time.RFC3339))
		} else {
			cmd.Printf("Last online:   never\n")
		}
		cmd.Printf("Stale:         %v\n", body.Stale)
		cmd.Printf("Queue depth:   %d\n", body.QueueDepth)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "127.0.0.1:8083", "daemon API address")
}
