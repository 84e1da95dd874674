package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	initForce        bool
	initWithPlaybook bool
	initWithConfig   bool
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a baton project",
	Long: `Initialize a directory for use with baton.

This command sets up everything needed to run baton:
  - Creates the .baton directory structure (state, logs, signals)
  - Updates .gitignore with baton entries when a git repo is present
  - Optionally creates a starter playbook and project config

The directory argument is optional and defaults to the current directory.

Examples:
  baton init                  # Initialize current directory
  baton init ./myproject      # Initialize specific directory
  baton init --with-playbook  # Also create a starter baton.yaml
  baton init --with-config    # Also create a .baton.yaml template`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Reinitialize even if already set up")
	initCmd.Flags().BoolVar(&initWithPlaybook, "with-playbook", false, "Create a starter playbook (baton.yaml)")
	initCmd.Flags().BoolVar(&initWithConfig, "with-config", false, "Create a .baton.yaml project config template")
}

func runInit(cmd *cobra.Command, args []string) error {
	targetDir := "."
	if len(args) > 0 {
		targetDir = args[0]
	}

	absPath, err := filepath.Abs(targetDir)
	if err != nil {
		return fmt.Errorf("resolving absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", absPath, err)
	}

	fmt.Printf("Initializing baton in %s...\n\n", absPath)

	batonDir := filepath.Join(absPath, ".baton")
	if _, err := os.Stat(batonDir); err == nil && !initForce {
		fmt.Printf("Directory already initialized. Use --force to reinitialize.\n")
		return nil
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		printStatus("⚠", "ANTHROPIC_API_KEY not set (fallback responses disabled until set)", color.FgYellow)
	} else {
		printStatus("✓", "ANTHROPIC_API_KEY is set", color.FgGreen)
	}

	for _, sub := range []string{"", "logs", "signals"} {
		dir := filepath.Join(batonDir, sub)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	printStatus("✓", "Created .baton directory structure", color.FgGreen)

	if _, err := os.Stat(filepath.Join(absPath, ".git")); err == nil {
		if err := updateGitignore(absPath); err != nil {
			return fmt.Errorf("updating .gitignore: %w", err)
		}
		printStatus("✓", "Updated .gitignore with baton entries", color.FgGreen)
	}

	if initWithPlaybook {
		if err := createStarterPlaybook(absPath); err != nil {
			return fmt.Errorf("creating starter playbook: %w", err)
		}
		printStatus("✓", "Created starter playbook (baton.yaml)", color.FgGreen)
	}

	if initWithConfig {
		if err := createProjectConfig(absPath); err != nil {
			return fmt.Errorf("creating project config: %w", err)
		}
		printStatus("✓", "Created .baton.yaml template", color.FgGreen)
	}

	fmt.Printf("\n%s baton initialization complete!\n\n", color.GreenString("✓"))
	fmt.Println("Next steps:")
	if apiKey == "" {
		fmt.Println("  1. Set your API key (optional, enables fallback responses):")
		fmt.Println("     export ANTHROPIC_API_KEY=your-key-here")
		fmt.Println()
	}
	if !initWithPlaybook {
		fmt.Println("  2. Create a playbook:")
		fmt.Println("     baton init --with-playbook")
		fmt.Println()
	}
	fmt.Println("  3. Run baton:")
	fmt.Println("     baton run \"your request here\"")

	return nil
}

// updateGitignore adds baton entries to .gitignore if not present
func updateGitignore(repoPath string) error {
	gitignorePath := filepath.Join(repoPath, ".gitignore")

	var existingContent string
	if data, err := os.ReadFile(gitignorePath); err == nil {
		existingContent = string(data)
	}

	batonEntries := []string{
		".baton/state.db*",
		".baton/logs/",
		".baton/signals/",
	}

	needsUpdate := false
	for _, entry := range batonEntries {
		if !strings.Contains(existingContent, entry) {
			needsUpdate = true
			break
		}
	}

	if !needsUpdate {
		return nil
	}

	var newContent strings.Builder
	newContent.WriteString(existingContent)

	if len(existingContent) > 0 && !strings.HasSuffix(existingContent, "\n") {
		newContent.WriteString("\n")
	}

	newContent.WriteString("\n# baton\n")
	for _, entry := range batonEntries {
		if !strings.Contains(existingContent, entry) {
			newContent.WriteString(entry + "\n")
		}
	}

	return os.WriteFile(gitignorePath, []byte(newContent.String()), 0644)
}

// createStarterPlaybook creates a minimal two-subtask playbook
func createStarterPlaybook(repoPath string) error {
	playbookPath := filepath.Join(repoPath, "baton.yaml")

	if _, err := os.Stat(playbookPath); err == nil {
		return nil // Already exists, don't overwrite
	}

	template := `# baton playbook
#
# Subtasks run in dependency order. Each subtask's steps call skills;
# "${name}" params are resolved from the session blackboard at run time.

name: starter

# Optional per-type skill allowlists. Subtask types without an entry
# may use any skill.
# guards:
#   readonly: [echo, text_transform]

subtasks:
  - id: compose
    goal: Compose the message
    steps:
      - skill: echo
        params:
          message: "hello from baton"

  - id: publish
    goal: Write the message to a file
    depends_on: [compose]
    expected_outputs: [greeting.txt]
    steps:
      - skill: file_write
        params:
          path: greeting.txt
          content: "${upstream_compose}"
    # fallback_steps run if the primary steps fail
    fallback_steps:
      - skill: echo
        params:
          message: "publish failed"
`

	return os.WriteFile(playbookPath, []byte(template), 0644)
}

// createProjectConfig creates .baton.yaml template
func createProjectConfig(repoPath string) error {
	configPath := filepath.Join(repoPath, ".baton.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return nil // Already exists, don't overwrite
	}

	template := `# baton Project Configuration
# This file overrides defaults from ~/.config/baton/config.yaml

# executor:
#   max_failures: 0
#   fallback_enabled: true
#   debug_log: false

# events:
#   buffer_size: 256

# state:
#   retain_runs: 720h

# tui:
#   enabled: true
#   refresh_rate: 100ms
`

	return os.WriteFile(configPath, []byte(template), 0644)
}

// printStatus prints a status line with color
func printStatus(symbol, message string, colorAttr color.Attribute) {
	c := color.New(colorAttr)
	fmt.Printf("%s %s\n", c.Sprint(symbol), message)
}
