// bridgectl drives a running bridge over its management API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/alecthomas/kong"
)

type CLI struct {
	Addr   string `help:"Bridge management API address" default:"http://localhost:8090" env:"BRIDGE_ADDR"`
	APIKey string `help:"Management API key" env:"BRIDGE_API_KEY"`

	Sessions     SessionsCmd     `cmd:"" help:"List assistant sessions"`
	Kill         KillCmd         `cmd:"" help:"Kill the session bound to a thread"`
	Status       StatusCmd       `cmd:"" help:"Show each project and its current stage"`
	Idea         IdeaCmd         `cmd:"" help:"Start a new project"`
	AdvanceStage AdvanceStageCmd `cmd:"" name:"advance-stage" help:"Advance a project to its next stage"`
	Send         SendCmd         `cmd:"" help:"Send text into the session bound to a thread"`
}

type client struct {
	addr   string
	apiKey string
	http   *http.Client
}

func (c *client) do(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.addr+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("bridge unreachable at %s: %w", c.addr, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s", apiErr.Error)
		}
		return fmt.Errorf("bridge returned %s", resp.Status)
	}
	if out != nil {
		return json.Unmarshal(data, out)
	}
	return nil
}

type SessionsCmd struct{}

func (cmd *SessionsCmd) Run(c *client) error {
	var out struct {
		Sessions []struct {
			ContextID  string `json:"context_id"`
			SessionNum int    `json:"session_num"`
			Name       string `json:"name"`
			Alive      bool   `json:"alive"`
		} `json:"sessions"`
	}
	if err := c.do(http.MethodGet, "/api/v1/sessions", nil, &out); err != nil {
		return err
	}
	if len(out.Sessions) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, s := range out.Sessions {
		state := "alive"
		if !s.Alive {
			state = "dead"
		}
		fmt.Printf("%-24s %-40s %s\n", s.Name, s.ContextID, state)
	}
	return nil
}

type KillCmd struct {
	Context string `arg:"" help:"Context ID (channel:thread_ts) of the session"`
}

func (cmd *KillCmd) Run(c *client) error {
	if err := c.do(http.MethodPost, "/api/v1/sessions/kill", map[string]string{"context_id": cmd.Context}, nil); err != nil {
		return err
	}
	fmt.Printf("killed %s\n", cmd.Context)
	return nil
}

type StatusCmd struct{}

func (cmd *StatusCmd) Run(c *client) error {
	var out struct {
		Projects map[string]string `json:"projects"`
	}
	if err := c.do(http.MethodGet, "/api/v1/projects", nil, &out); err != nil {
		return err
	}
	if len(out.Projects) == 0 {
		fmt.Println("no projects")
		return nil
	}
	names := make([]string, 0, len(out.Projects))
	for name := range out.Projects {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("%-30s %s\n", name, out.Projects[name])
	}
	return nil
}

type IdeaCmd struct {
	Name        string `arg:"" help:"Project name (lowercase, digits, hyphens)"`
	Description string `arg:"" optional:"" help:"What the project is about"`
}

func (cmd *IdeaCmd) Run(c *client) error {
	var out struct {
		Project   string `json:"project"`
		ChannelID string `json:"channel_id"`
		ThreadTS  string `json:"thread_ts"`
	}
	body := map[string]string{"name": cmd.Name, "description": cmd.Description}
	if err := c.do(http.MethodPost, "/api/v1/projects", body, &out); err != nil {
		return err
	}
	fmt.Printf("project %s started, thread %s:%s\n", out.Project, out.ChannelID, out.ThreadTS)
	return nil
}

type AdvanceStageCmd struct {
	Context string `arg:"" help:"Context ID (channel:thread_ts) of the current stage thread"`
}

func (cmd *AdvanceStageCmd) Run(c *client) error {
	var out struct {
		Project string `json:"project"`
		From    string `json:"from"`
		To      string `json:"to"`
		Git     struct {
			Committed  bool   `json:"Committed"`
			Pushed     bool   `json:"Pushed"`
			Diagnostic string `json:"Diagnostic"`
		} `json:"git"`
		Provisioning *struct {
			Dir     string `json:"dir"`
			RepoURL string `json:"repo_url"`
			Pushed  bool   `json:"pushed"`
		} `json:"provisioning"`
	}
	if err := c.do(http.MethodPost, "/api/v1/advance", map[string]string{"context_id": cmd.Context}, &out); err != nil {
		return err
	}
	fmt.Printf("%s: %s -> %s\n", out.Project, out.From, out.To)
	if out.Git.Committed && !out.Git.Pushed {
		fmt.Printf("warning: phase commit not pushed: %s\n", out.Git.Diagnostic)
	}
	if out.Provisioning != nil {
		fmt.Printf("workspace: %s\nrepository: %s\n", out.Provisioning.Dir, out.Provisioning.RepoURL)
		if !out.Provisioning.Pushed {
			fmt.Println("warning: initial push failed, workspace is local only")
		}
	}
	return nil
}

type SendCmd struct {
	Context string `arg:"" help:"Context ID (channel:thread_ts) of the session"`
	Text    string `arg:"" help:"Text typed into the session"`
}

func (cmd *SendCmd) Run(c *client) error {
	body := map[string]string{"context_id": cmd.Context, "text": cmd.Text}
	if err := c.do(http.MethodPost, "/api/v1/messages", body, nil); err != nil {
		return err
	}
	fmt.Printf("delivered to %s\n", cmd.Context)
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("bridgectl"),
		kong.Description("Control a running session bridge."),
		kong.UsageOnError(),
	)

	c := &client{
		addr:   cli.Addr,
		apiKey: cli.APIKey,
		http:   &http.Client{Timeout: 3 * time.Minute},
	}
	if err := ctx.Run(c); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
