// LexMap: spatial-temporal memory MCP server for codebases.
//
// A universal MCP server that integrates with any AI coding tool
// (Claude Code, OpenCode, Gemini CLI, Codex, Cursor, VS Code Copilot)
// and gives it a dependency map of the repository plus a persistent
// record of what past sessions did.
//
// Usage:
//
//	lexmap serve             # Start MCP server (stdio transport)
//	lexmap scan <dir>        # Extract architectural facts as JSON
//	lexmap validate          # Check the policy-derived atlas
//	lexmap update            # Self-update to the latest release
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/lexmap/lexmap/internal/atlas"
	"github.com/lexmap/lexmap/internal/config"
	"github.com/lexmap/lexmap/internal/policy"
	"github.com/lexmap/lexmap/internal/scanner"
	lexserver "github.com/lexmap/lexmap/internal/server"
	"github.com/lexmap/lexmap/internal/updater"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "scan":
		if err := runScan(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "validate":
		if err := runValidate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "update":
		if err := runUpdate(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("lexmap v%s\n", lexserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := config.Load(os.Getenv("LEXMAP_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, cleanup, err := lexserver.New(cfg)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	// Non-blocking; the notice goes to stderr so stdout stays clean for
	// the MCP protocol.
	go checkForUpdates()

	return server.ServeStdio(s)
}

// checkForUpdates prints a notice when a newer release exists. Best-effort:
// network failures are silent.
func checkForUpdates() {
	result := updater.CheckVersion(lexserver.Version)
	if result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "lexmap v%s is available (you have v%s). Run 'lexmap update' to upgrade.\n",
			result.LatestVersion, result.CurrentVersion)
	}
}

// runUpdate replaces the current binary with the latest GitHub release.
func runUpdate() error {
	fmt.Fprintln(os.Stderr, "Checking for updates...")

	result := updater.CheckVersion(lexserver.Version)
	if !result.UpdateAvailable {
		fmt.Fprintf(os.Stderr, "Already at the latest version (v%s).\n", result.CurrentVersion)
		return nil
	}

	fmt.Fprintf(os.Stderr, "Updating v%s -> v%s...\n", result.CurrentVersion, result.LatestVersion)
	if err := updater.SelfUpdate(lexserver.Version); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Updated to v%s. Restart any running MCP servers to pick it up.\n", result.LatestVersion)
	return nil
}

// runScan extracts facts from a source tree and prints them as JSON on
// stdout, matching the scanner plugin contract.
func runScan(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: lexmap scan <directory>")
	}

	out, err := scanner.Scan(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// runValidate builds the atlas from the configured policy and reports its
// structural integrity. Exit status 1 signals an invalid atlas, for CI use.
func runValidate() error {
	cfg, err := config.Load(os.Getenv("LEXMAP_CONFIG"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	pol, err := policy.Load(cfg.PolicyPath)
	if err != nil {
		return fmt.Errorf("loading policy: %w", err)
	}

	built, err := atlas.NewRebuilder(pol).Rebuild(nil)
	if err != nil {
		return fmt.Errorf("building atlas: %w", err)
	}

	result := atlas.Validate(built)
	if result.Valid {
		fmt.Printf("Atlas is structurally valid: %d modules, %d edges.\n",
			len(built.Nodes), len(built.Edges))
	} else {
		fmt.Printf("Atlas is INVALID (%d error(s)):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("  - %s\n", e)
		}
	}
	for _, w := range result.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	if !result.Valid {
		os.Exit(1)
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `LexMap v%s — spatial-temporal memory MCP server for codebases

Usage:
  lexmap serve             Start the MCP server (stdio transport)
  lexmap scan <dir>        Extract architectural facts from a source tree (JSON on stdout)
  lexmap validate          Check the policy-derived atlas (exit 1 when invalid)
  lexmap update            Download and install the latest release

Environment:
  LEXMAP_CONFIG            Path to a YAML config file (optional)
  LEXMAP_POLICY            Policy file path (default: lexmap.policy.json)
  LEXMAP_DATA_DIR          Frame store directory (default: ~/.lexmap)

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "lexmap": {
        "command": "lexmap",
        "args": ["serve"]
      }
    }
  }
`, lexserver.Version)
}
