package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/identify"
	"github.com/spf13/cobra"
)

var modeCmd = &cobra.Command{
	Use:   "mode [classify|embed]",
	Short: "Show or switch the recognition mode of a running server",
	Long: `Show or switch the recognition mode of a running server through its admin API.
The mode lives in the server's memory and resets to RECOGNITION_MODE on restart.
Requires ADMIN_TOKEN.

Examples:
  rollcall mode
  rollcall mode embed --server http://attendance.local:8080`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMode,
}

func init() {
	rootCmd.AddCommand(modeCmd)

	modeCmd.Flags().String("server", "", "Server base URL (default http://localhost:<WEB_PORT>)")
}

type modeResponse struct {
	Mode      identify.Mode `json:"mode"`
	Threshold float64       `json:"threshold"`
	Error     string        `json:"error"`
}

func runMode(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Web.AdminToken == "" {
		return errors.New("ADMIN_TOKEN environment variable is required")
	}
	server := mustGetString(cmd, "server")
	if server == "" {
		server = fmt.Sprintf("http://localhost:%d", cfg.Web.Port)
	}

	method := http.MethodGet
	endpoint := strings.TrimRight(server, "/") + "/api/v1/config/face-recognition"
	if len(args) == 1 {
		mode, err := identify.ParseMode(args[0])
		if err != nil {
			return err
		}
		method = http.MethodPut
		endpoint += "?mode=" + url.QueryEscape(string(mode))
	}

	resp, err := adminRequest(cmd.Context(), method, endpoint, cfg.Web.AdminToken)
	if err != nil {
		return err
	}
	fmt.Printf("Recognition mode: %s (threshold %.2f)\n", resp.Mode, resp.Threshold)
	return nil
}

func adminRequest(ctx context.Context, method, endpoint, token string) (*modeResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contacting server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	var out modeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, out.Error)
	}
	return &out, nil
}
