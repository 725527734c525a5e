// Command sitecheck-mcp exposes a running sitecheck server as MCP tools
// over stdio.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/use-agent/sitecheck/models"
)

func main() {
	apiURL := os.Getenv("SITECHECK_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SITECHECK_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SITECHECK_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"sitecheck",
		"0.1.0",
		server.WithToolCapabilities(false),
	)

	checkSiteTool := mcp.NewTool("check_site",
		mcp.WithDescription("Crawl a website in a headless browser and verify every visited page: HTTP reachability, console errors, broken internal links, forms and safe button clicks. Returns a summary of failed checks."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("Start URL; a missing scheme defaults to http"),
		),
		mcp.WithNumber("crawl_depth",
			mcp.Description("How many links deep to follow from the start page (0 = start page only, default 1, max 10)"),
		),
		mcp.WithNumber("max_pages",
			mcp.Description("Maximum number of pages to visit (default 30, max 500)"),
		),
		mcp.WithBoolean("fill_forms",
			mcp.Description("Type preset values into form inputs; forms are never submitted"),
		),
	)
	s.AddTool(checkSiteTool, handleCheckSite(apiURL, apiKey))

	stopTool := mcp.NewTool("stop_check",
		mcp.WithDescription("Stop a running site check; the page being checked still completes"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Session ID returned by check_site"),
		),
	)
	s.AddTool(stopTool, handleStop(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the sitecheck API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, apiURL, apiKey, path string, payload any) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollSession polls GET /sessions/:id until the session leaves the
// processing state.
func pollSession(ctx context.Context, client *http.Client, apiURL, apiKey, id string, every time.Duration) (*models.SessionStatusResponse, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiDo(ctx, client, http.MethodGet, apiURL, apiKey, "/api/v1/sessions/"+id, nil)
			if err != nil {
				return nil, err
			}
			var status models.SessionStatusResponse
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if status.Status != models.StatusProcessing {
				return &status, nil
			}
		}
	}
}

func handleCheckSite(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := map[string]any{"url": url}
		args := request.GetArguments()
		if depth, ok := args["crawl_depth"]; ok {
			payload["crawl_depth"] = depth
		}
		if maxPages, ok := args["max_pages"]; ok {
			payload["max_pages"] = maxPages
		}
		if request.GetBool("fill_forms", false) {
			payload["fill_forms"] = true
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL, apiKey, "/api/v1/sessions", payload)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("check request failed: %v", err)), nil
		}
		var created models.SessionResponse
		if err := json.Unmarshal(respBody, &created); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse session response: %v", err)), nil
		}
		if created.ID == "" {
			msg := "session creation failed"
			if created.Error != nil {
				msg += ": " + created.Error.Message
			}
			return mcp.NewToolResultError(msg), nil
		}

		status, err := pollSession(ctx, client, apiURL, apiKey, created.ID, 2*time.Second)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling session %s failed: %v", created.ID, err)), nil
		}
		return mcp.NewToolResultText(formatStatus(status)), nil
	}
}

func handleStop(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("id")
		if err != nil {
			return mcp.NewToolResultError("id is required"), nil
		}
		body, err := apiDo(ctx, client, http.MethodDelete, apiURL, apiKey, "/api/v1/sessions/"+id, nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stop request failed: %v", err)), nil
		}
		var resp models.SessionResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse stop response: %v", err)), nil
		}
		if resp.Error != nil {
			return mcp.NewToolResultError(resp.Error.Message), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Session %s: stop requested", id)), nil
	}
}

// formatStatus renders the totals and every failed check.
func formatStatus(s *models.SessionStatusResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %s: %s\n", s.ID, s.Status)
	if s.Error != nil {
		fmt.Fprintf(&sb, "Error: %s (%s)\n", s.Error.Message, s.Error.Code)
	}
	rep := s.Report
	if rep == nil {
		return sb.String()
	}

	fmt.Fprintf(&sb, "%s: %d pages, %d checks passed, %d failed\n",
		rep.Session.BaseURL, rep.TotalPages, rep.TotalPassed, rep.TotalFailed)
	for _, p := range rep.Pages {
		if p.Failed == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n%s (depth %d)\n", p.URL, p.Depth)
		for _, c := range p.Checks {
			if !c.Passed {
				fmt.Fprintf(&sb, "  FAIL %s: %s\n", c.Name, c.Message)
			}
		}
	}
	if rep.TotalFailed == 0 {
		sb.WriteString("\nAll checks passed.\n")
	}
	return sb.String()
}
