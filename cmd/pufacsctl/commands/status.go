package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/pufacs/internal/server"
)

// errUnsupportedFormat is returned when the requested output format is not
// supported.
var errUnsupportedFormat = errors.New("unsupported output format")

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Fetch engine status from a pufacsd or pufacs-supplicant process",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			status, err := fetchStatus(serverAddr)
			if err != nil {
				return err
			}
			out, err := formatStatus(status, outputFormat)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		},
	}
}

func fetchStatus(addr string) (*server.Status, error) {
	resp, err := httpClient.Get("http://" + addr + "/status")
	if err != nil {
		return nil, fmt.Errorf("fetch status from %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("fetch status from %s: unexpected status %d: %s", addr, resp.StatusCode, string(body))
	}

	var status server.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode status from %s: %w", addr, err)
	}
	return &status, nil
}

func formatStatus(status *server.Status, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal status to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Role:\t%s\n", status.Role)
		fmt.Fprintf(w, "State:\t%s\n", status.State)
		fmt.Fprintf(w, "Connected:\t%t\n", status.Connected)
		if status.CredentialEntries != nil {
			fmt.Fprintf(w, "Credential entries:\t%d\n", *status.CredentialEntries)
		}
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

const (
	formatJSON  = "json"
	formatTable = "table"
)
