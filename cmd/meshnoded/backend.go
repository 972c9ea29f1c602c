package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// backendCmd is a thin client against the running node's local admin HTTP
// endpoint (httpapi.Module's /api/backends/{id}/switch), not a second
// implementation of the switch logic in C5's registry.Registry.
func backendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backend",
		Short: "Inspect or switch the node's active backend",
	}
	cmd.PersistentFlags().String("addr", "http://127.0.0.1:11434", "Node admin HTTP address")

	switchCmd := &cobra.Command{
		Use:   "switch <native|openai_compat>",
		Short: "Switch the active backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			force, _ := cmd.Flags().GetBool("force")
			validate, _ := cmd.Flags().GetBool("validate")
			restart, _ := cmd.Flags().GetBool("restart")

			return switchBackend(addr, args[0], switchRequest{
				Force:    force,
				Validate: validate,
				Restart:  restart,
			})
		},
	}
	switchCmd.Flags().Bool("force", false, "Switch even if the target backend is unhealthy")
	switchCmd.Flags().Bool("validate", false, "Probe the target backend's availability before switching")
	switchCmd.Flags().Bool("restart", false, "Persist the switch so it survives a node restart")
	cmd.AddCommand(switchCmd)

	statusCmd := &cobra.Command{
		Use:   "status <native|openai_compat>",
		Short: "Show a backend's current health status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			return backendStatus(addr, args[0])
		},
	}
	cmd.AddCommand(statusCmd)

	return cmd
}

type switchRequest struct {
	Force    bool `json:"force"`
	Validate bool `json:"validate"`
	Restart  bool `json:"restart"`
}

var adminClient = &http.Client{Timeout: 10 * time.Second}

func switchBackend(addr, backendID string, req switchRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("backend switch: encoding request: %w", err)
	}

	url := addr + "/api/backends/" + backendID + "/switch"
	resp, err := adminClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("backend switch: calling node at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend switch: node returned %s: %s", resp.Status, string(out))
	}

	fmt.Println(string(out))
	return nil
}

func backendStatus(addr, backendID string) error {
	url := addr + "/api/backends/" + backendID + "/status"
	resp, err := adminClient.Get(url)
	if err != nil {
		return fmt.Errorf("backend status: calling node at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend status: node returned %s: %s", resp.Status, string(out))
	}

	fmt.Println(string(out))
	return nil
}
