package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/bryanchriswhite/SnipClip/internal/config"
	"github.com/spf13/cobra"
)

var snipCmd = &cobra.Command{
	Use:   "snip",
	Short: "Trigger a capture on a running daemon",
	Long: `Ask a running SnipClip daemon to start a capture.

Open the overlay page in a browser to make the selection; the cropped
region lands on the clipboard.`,
	Example: `  # Trigger a capture
  snipclip snip

  # Trigger and wait for the result
  snipclip snip --wait`,
	RunE: runSnip,
}

var snipWait bool

func init() {
	rootCmd.AddCommand(snipCmd)
	snipCmd.Flags().BoolVarP(&snipWait, "wait", "w", false, "wait for the capture to finish")
}

type captureResponse struct {
	Started bool   `json:"started"`
	State   string `json:"state"`
}

type statusResponse struct {
	State         string `json:"state"`
	InFlight      bool   `json:"in_flight"`
	HasPermission bool   `json:"has_permission"`
	LastError     string `json:"last_error"`
	LastResult    string `json:"last_result"`
}

func runSnip(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	base := fmt.Sprintf("http://localhost:%d/api", configMgr.GetPort())

	resp, err := http.Post(base+"/capture", "application/json", nil)
	if err != nil {
		return fmt.Errorf("daemon not reachable at %s (is 'snipclip serve' running?): %w", base, err)
	}
	defer resp.Body.Close()

	var cr captureResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return fmt.Errorf("unexpected daemon response: %w", err)
	}

	if cr.Started {
		fmt.Printf("Capture started (state: %s). Make your selection in the overlay.\n", cr.State)
	} else {
		fmt.Printf("Capture already in flight (state: %s).\n", cr.State)
	}

	if !snipWait {
		return nil
	}

	for {
		time.Sleep(250 * time.Millisecond)

		st, err := fetchStatus(base)
		if err != nil {
			return err
		}
		if st.InFlight {
			continue
		}

		switch st.State {
		case "delivered":
			fmt.Println("Selection copied to clipboard.")
		case "failed":
			fmt.Printf("Capture failed: %s\n", st.LastError)
		default:
			fmt.Printf("Capture finished (state: %s).\n", st.State)
		}
		return nil
	}
}

func fetchStatus(base string) (*statusResponse, error) {
	resp, err := http.Get(base + "/status")
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable: %w", err)
	}
	defer resp.Body.Close()

	var st statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return nil, fmt.Errorf("unexpected daemon response: %w", err)
	}
	return &st, nil
}
