package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
)

// SetupCmd configures MCP for various AI clients.
type SetupCmd struct {
	Qwen     bool   `help:"Configure for Qwen CLI"`
	Claude   bool   `help:"Configure for Claude Code"`
	Cursor   bool   `help:"Configure for Cursor"`
	Local    bool   `help:"Create project-local configuration"`
	Global   bool   `help:"Create global configuration"`
	Format   string `help:"Output format (json|text)" enum:"json,text" default:"json"`
	FilePath string `help:"Custom directory for the local configuration"`
	Out      string `short:"o" type:"path" help:"Output directory the server reads (default: .kin)"`
}

// mcpClient describes where a client looks for its MCP configuration.
type mcpClient struct {
	name      string
	title     string
	configDir string
	localFile string
}

var mcpClients = []mcpClient{
	{name: "qwen", title: "Qwen", configDir: ".qwen", localFile: "mcp.json"},
	{name: "claude", title: "Claude", configDir: ".claude", localFile: "settings.json"},
	{name: "cursor", title: "Cursor", configDir: ".cursor", localFile: "mcp.json"},
}

// Run executes the setup command.
func (c *SetupCmd) Run(g *Globals) error {
	if c.Format != "json" && c.Format != "text" {
		return fmt.Errorf("invalid format: %s (must be json or text)", c.Format)
	}

	out, err := g.outDir(c.Out)
	if err != nil {
		return err
	}
	if abs, err := filepath.Abs(out); err == nil {
		out = abs
	}
	config := generateKinConfig(out)

	selected := map[string]bool{"qwen": c.Qwen, "claude": c.Claude, "cursor": c.Cursor}
	if !c.Qwen && !c.Claude && !c.Cursor {
		content, err := renderConfig(config, c.Format)
		if err != nil {
			return err
		}
		fmt.Print(string(content))
		return nil
	}

	if !c.Local && !c.Global {
		c.Local = true
	}

	for _, client := range mcpClients {
		if !selected[client.name] {
			continue
		}
		if c.Global {
			path := getGlobalConfigPath(client)
			if err := writeConfig(path, config, c.Format); err != nil {
				return err
			}
			color.Green("✓ Created global %s MCP config at %s", client.title, path)
		}
		if c.Local {
			path := getLocalConfigPath(".", client)
			if c.FilePath != "" {
				path = filepath.Join(c.FilePath, client.localFile)
			}
			if err := writeConfig(path, config, c.Format); err != nil {
				return err
			}
			color.Green("✓ Created local %s MCP config at %s", client.title, path)
		}
	}
	return nil
}

// generateKinConfig returns the MCP server entry that starts kin on the
// given output directory.
func generateKinConfig(out string) map[string]any {
	return map[string]any{
		"mcpServers": map[string]any{
			"kin": map[string]any{
				"command": "kin",
				"args":    []string{"mcp", "--out", out},
			},
		},
	}
}

func getLocalConfigPath(basePath string, client mcpClient) string {
	return filepath.Join(basePath, client.configDir, "mcp.json")
}

func getGlobalConfigPath(client mcpClient) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = os.Getenv("HOME")
	}
	return filepath.Join(homeDir, client.configDir, "global", "mcp.json")
}

func renderConfig(config map[string]any, format string) ([]byte, error) {
	if format == "json" {
		content, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshaling JSON: %w", err)
		}
		return append(content, '\n'), nil
	}

	var sb strings.Builder
	sb.WriteString("# MCP Configuration for kin\n")
	sb.WriteString("# Generated by kin setup\n\n")
	for key, value := range config {
		fmt.Fprintf(&sb, "%s: %s\n", key, toJSON(value))
	}
	return []byte(sb.String()), nil
}

func writeConfig(configPath string, config map[string]any, format string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	content, err := renderConfig(config, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, content, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func toJSON(v any) string {
	bytes, _ := json.Marshal(v)
	return string(bytes)
}
