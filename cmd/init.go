package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tadoEng/EtabExtension/internal/config"
	"github.com/tadoEng/EtabExtension/internal/facade"
)

var (
	initName string
	initFrom string
)

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Create a version-controlled ETABS project",
	Long: `Create a project with a main branch and a default config file.

This command:
  - Creates the .etabext directory and the project manifest
  - Copies an existing design file in as main's working file (--from)
  - Creates a default config file if it doesn't exist

Examples:
  etabext init
  etabext init ./tower --name "Tower A" --from ~/models/tower.edb`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().StringVar(&initName, "name", "", "Project name (default: directory name)")
	initCmd.Flags().StringVar(&initFrom, "from", "", "Existing .edb file to start main from")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := projectDir
	if len(args) > 0 {
		path = args[0]
	}
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	from := initFrom
	if from != "" {
		abs, err := filepath.Abs(from)
		if err != nil {
			return fmt.Errorf("invalid design file path: %w", err)
		}
		from = abs
	}

	resp, err := newService().CreateProject(commandContext(cmd), facade.CreateProjectRequest{
		ProjectPath:    path,
		ProjectName:    initName,
		InitialEdbFile: from,
	})
	if err != nil {
		return err
	}

	success("Created project %s at %s", styleHeading.Render(resp.ProjectName), resp.ProjectPath)
	fmt.Printf("  Branches: %v\n", resp.CreatedBranches)
	if from != "" {
		fmt.Printf("  Working file seeded from %s (unsaved)\n", from)
	}

	if err := writeDefaultConfig(); err != nil {
		warn("%v", err)
	}

	fmt.Println()
	success("Project initialized successfully!")
	fmt.Println(`  You can now use: etabext save -m "<message>"`)

	return nil
}

// writeDefaultConfig creates the user config file unless one exists.
func writeDefaultConfig() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	dir := configDir(home)
	configPath := filepath.Join(dir, "config.toml")

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		return nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := config.DefaultFile().Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	success("Created default config: %s", configPath)
	return nil
}
