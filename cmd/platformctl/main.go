// Command platformctl is a small operator CLI for smoke-testing a running
// platform server from a terminal: start/stop a crawl, ask a question
// against a project and watch the SSE stream, and inspect LLM backend
// health. It talks to cmd/platform's HTTP API described in spec.md §6; it
// has no access to the server's internal state.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/corpusloop/platform/sse"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "platformctl:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var server string

	root := &cobra.Command{
		Use:           "platformctl",
		Short:         "operator CLI for the corpusloop platform server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&server, "server", "http://localhost:8080", "base URL of the platform HTTP server")

	root.AddCommand(newAskCmd(&server))
	root.AddCommand(newCrawlCmd(&server))
	root.AddCommand(newHealthCmd(&server))
	return root
}

func newAskCmd(server *string) *cobra.Command {
	var project, sessionID, userID string

	cmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "ask a question against a project and stream the answer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ask(*server, project, sessionID, userID, args[0])
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&sessionID, "session", "", "existing session id, if continuing a conversation")
	cmd.Flags().StringVar(&userID, "user", "", "authenticated user id, for rate limiting")
	cmd.MarkFlagRequired("project")
	return cmd
}

func ask(server, project, sessionID, userID, message string) error {
	body, err := json.Marshal(map[string]string{
		"project":    project,
		"message":    message,
		"session_id": sessionID,
		"user_id":    userID,
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(server+"/api/v1/chat", "application/json", strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chat request failed: %s: %s", resp.Status, string(b))
	}

	dec := sse.NewDecoder(resp.Body)
	for dec.Next() {
		msg := dec.Current()
		switch msg.Event {
		case "token":
			var tok struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(msg.Data, &tok); err == nil {
				fmt.Print(tok.Text)
			}
		case "sources":
			fmt.Println()
			fmt.Println("sources:", string(msg.Data))
		case "actions":
			fmt.Println("actions:", string(msg.Data))
		case "error":
			fmt.Println()
			return fmt.Errorf("orchestrator error: %s", string(msg.Data))
		case "done":
			fmt.Println()
		}
	}
	if err := dec.Error(); err != nil && err != io.EOF {
		return fmt.Errorf("read event stream: %w", err)
	}
	return nil
}

func newCrawlCmd(server *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "start, stop or inspect a crawl job",
	}
	cmd.AddCommand(newCrawlStartCmd(server))
	cmd.AddCommand(newCrawlStopCmd(server))
	cmd.AddCommand(newCrawlStatusCmd(server))
	return cmd
}

func newCrawlStartCmd(server *string) *cobra.Command {
	var project, startURL string
	var maxDepth, maxPages int
	var jsRender bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "start a crawl job for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]any{
				"project":   project,
				"start_url": startURL,
				"max_depth": maxDepth,
				"max_pages": maxPages,
				"js_render": jsRender,
			})
			if err != nil {
				return err
			}
			return postJSON(*server+"/api/v1/crawler/start", body)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.Flags().StringVar(&startURL, "url", "", "seed URL (required)")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 2, "crawl depth limit")
	cmd.Flags().IntVar(&maxPages, "max-pages", 100, "crawl page limit")
	cmd.Flags().BoolVar(&jsRender, "js-render", false, "render pages with a headless browser")
	cmd.MarkFlagRequired("project")
	cmd.MarkFlagRequired("url")
	return cmd
}

func newCrawlStopCmd(server *string) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "stop the running crawl job for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := json.Marshal(map[string]string{"project": project})
			if err != nil {
				return err
			}
			return postJSON(*server+"/api/v1/crawler/stop", body)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.MarkFlagRequired("project")
	return cmd
}

func newCrawlStatusCmd(server *string) *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "report the current crawl job status for a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(*server + "/api/v1/crawler/status?project=" + project)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project slug (required)")
	cmd.MarkFlagRequired("project")
	return cmd
}

func newHealthCmd(server *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "report liveness of the server's backing dependencies and LLM backends",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := http.Get(*server + "/health")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			return printResponse(resp)
		},
	}
}

func postJSON(url string, body []byte) error {
	resp, err := http.Post(url, "application/json", strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	var buf strings.Builder
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return err
	}
	var pretty map[string]any
	if err := json.Unmarshal([]byte(buf.String()), &pretty); err == nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(pretty)
	} else {
		fmt.Println(buf.String())
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
