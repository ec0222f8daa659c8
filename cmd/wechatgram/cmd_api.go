package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/wechatgram/internal/config"
	"github.com/user/wechatgram/internal/scheduler"
	"github.com/user/wechatgram/internal/types"
	"github.com/user/wechatgram/internal/wechat"
)

var (
	contactsQuery  string
	contactsGroups string
)

func init() {
	rootCmd.AddCommand(statusCmd, contactsCmd, sendCmd)
	contactsCmd.Flags().StringVarP(&contactsQuery, "query", "q", "", "filter by id or name")
	contactsCmd.Flags().StringVar(&contactsGroups, "groups", "", `"only" or "none"`)
}

// apiBase returns the daemon's status API root.
func apiBase(cfg *config.Config) (string, error) {
	if !cfg.HTTP.Enabled {
		return "", errors.New("the HTTP API is disabled; set http.enabled to true and restart the daemon")
	}
	listen := cfg.HTTP.Listen
	if strings.HasPrefix(listen, ":") {
		listen = "127.0.0.1" + listen
	}
	return "http://" + listen, nil
}

var apiClient = &http.Client{Timeout: 10 * time.Second}

// callAPI sends a request to the daemon and decodes a JSON reply into out.
func callAPI(method, path string, body, out any) error {
	base, err := apiBase(loadConfig())
	if err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := apiClient.Do(req)
	if err != nil {
		return fmt.Errorf("daemon not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon: %s", apiErr.Error)
		}
		return fmt.Errorf("daemon: %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running daemon's session, jobs and recent failures",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var st struct {
			WeChat   *wechat.Status           `json:"wechat"`
			Jobs     []scheduler.Entry        `json:"jobs"`
			Failures []*types.DeliveryFailure `json:"recent_failures"`
		}
		if err := callAPI(http.MethodGet, "/api/status", nil, &st); err != nil {
			return err
		}
		if st.WeChat != nil {
			fmt.Printf("State:     %s\n", st.WeChat.State)
			fmt.Printf("Logged in: %t\n", st.WeChat.Valid)
			if st.WeChat.User != "" {
				fmt.Printf("User:      %s\n", st.WeChat.User)
			}
			fmt.Printf("Contacts:  %d\n", st.WeChat.Contacts)
		}
		for _, j := range st.Jobs {
			fmt.Printf("Job %s next run %s\n", j.Name, j.Next.Local().Format(time.DateTime))
		}
		if n := len(st.Failures); n > 0 {
			fmt.Printf("%d recent delivery failures (see 'wechatgram state failures')\n", n)
		}
		return nil
	},
}

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "List the running daemon's WeChat contacts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if contactsQuery != "" {
			q.Set("q", contactsQuery)
		}
		if contactsGroups != "" {
			q.Set("groups", contactsGroups)
		}
		path := "/api/contacts"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var list []types.Contact
		if err := callAPI(http.MethodGet, path, nil, &list); err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No contacts found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tGROUP\tID")
		for _, c := range list {
			fmt.Fprintf(w, "%s\t%t\t%s\n", c.DisplayName, c.Group, c.ID)
		}
		return w.Flush()
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <to> <text>",
	Short: "Send a text message through the running daemon",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			EventID string `json:"event_id"`
		}
		body := map[string]string{"to": args[0], "text": args[1]}
		if err := callAPI(http.MethodPost, "/api/send", body, &resp); err != nil {
			return err
		}
		fmt.Printf("Queued (event %s).\n", resp.EventID)
		return nil
	},
}
