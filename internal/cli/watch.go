package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WatchCmd returns the watch command
func WatchCmd() *cobra.Command {
	var (
		server string
		token  string
		role   string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "watch <routeId>",
		Short: "Stream a route's live events from a running API server",
		Long: `Connect to /v1/routes/{id}/events/ws and print each event as it arrives.
Authenticate with --token (bearer) or, against a dev-mode server, with --role.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := url.Parse(server)
			if err != nil {
				return fmt.Errorf("bad --server: %w", err)
			}
			switch u.Scheme {
			case "https":
				u.Scheme = "wss"
			default:
				u.Scheme = "ws"
			}
			u.Path = strings.TrimRight(u.Path, "/") + "/v1/routes/" + url.PathEscape(args[0]) + "/events/ws"
			hdr := http.Header{}
			if token != "" {
				hdr.Set("Authorization", "Bearer "+token)
			} else if role != "" {
				hdr.Set("X-Role", role)
			}
			c, resp, err := websocket.DefaultDialer.DialContext(cmd.Context(), u.String(), hdr)
			if err != nil {
				if resp != nil {
					return fmt.Errorf("dial %s: %s", u.Redacted(), resp.Status)
				}
				return fmt.Errorf("dial %s: %w", u.Redacted(), err)
			}
			defer func() { _ = c.Close() }()
			go func() {
				<-cmd.Context().Done()
				_ = c.Close()
			}()

			out := cmd.OutOrStdout()
			typ := color.New(color.FgCyan, color.Bold)
			for n := 0; limit <= 0 || n < limit; n++ {
				var m wsMessage
				if err := c.ReadJSON(&m); err != nil {
					if cmd.Context().Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
						return nil
					}
					return fmt.Errorf("read: %w", err)
				}
				fmt.Fprintf(out, "%s %s\n", typ.Sprint(m.Type), string(m.Data))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "API base URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token")
	cmd.Flags().StringVar(&role, "role", "", "X-Role header for dev-mode servers")
	cmd.Flags().IntVar(&limit, "max", 0, "exit after this many messages (0 = until interrupted)")
	return cmd
}
