package gen

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for the nrepl commands",
	Long:  `Generate man pages and markdown documentation for the nrepl commands`,
}

var (
	docsDir string
)

var DocsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Generate markdown documentation for the nrepl commands",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := ensureDir(cmd, docsDir); err != nil {
			return err
		}

		cmd.Root().DisableAutoGenTag = true

		fmt.Fprintln(cmd.OutOrStdout(), "Generating nrepl markdown docs in", docsDir, "...")

		return doc.GenMarkdownTree(cmd.Root(), docsDir)
	},
}

func init() {
	DocsCmd.PersistentFlags().StringVar(&docsDir, "dir", "docs/", "the directory to write the markdown docs.")

	RootCmd.AddCommand(ManPagesCmd)
	RootCmd.AddCommand(DocsCmd)
}

func ensureDir(cmd *cobra.Command, dir string) error {
	if _, err := os.Stat(filepath.Clean(dir)); err != nil && os.IsNotExist(err) {
		fmt.Fprintln(cmd.OutOrStdout(), "Directory", dir, "does not exist, creating...")
		return os.MkdirAll(dir, 0750)
	}

	return nil
}
