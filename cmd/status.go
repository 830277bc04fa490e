package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"reportpush/pkg/service"
	"reportpush/pkg/ui"

	"github.com/spf13/cobra"
)

var statusAddress string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of a running daemon",
	Long:  "Queries the status endpoint of a running reportpush daemon and prints channel and task state.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, _, err := setup()
		if err != nil {
			fmt.Printf("%v\n", err)
			return
		}

		address := statusAddress
		if address == "" {
			host := strings.TrimSpace(cfg.Serve.Host)
			if host == "" || host == "0.0.0.0" {
				host = "127.0.0.1"
			}
			port := cfg.Serve.Port
			if port <= 0 {
				port = 18890
			}
			address = host + ":" + strconv.Itoa(port)
		}

		status, err := fetchDaemonStatus(address)
		if err != nil {
			fmt.Printf("daemon unreachable at %s: %v\n", address, err)
			os.Exit(1)
		}

		fmt.Print(ui.RenderStatus(*status))
	},
}

func fetchDaemonStatus(address string) (*service.StatusResponse, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get("http://" + address + "/healthz")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var status service.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}

	return &status, nil
}

func init() {
	statusCmd.Flags().StringVar(&statusAddress, "address", "", "daemon status address (host:port), defaults to the serve config")
	rootCmd.AddCommand(statusCmd)
}
