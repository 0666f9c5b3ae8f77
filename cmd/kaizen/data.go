package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/project-kaizen/kaizen/internal/knowledge"
	"github.com/spf13/cobra"
)

var treeNamespace string

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print namespaces, scopes and their parents",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		list, err := store.ListNamespaces(cmd.Context(), treeNamespace, knowledge.StyleDetails)
		if err != nil {
			return err
		}
		renderTree(cmd.OutOrStdout(), list)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write every namespace, scope and entry as YAML",
	Long:  `Writes a YAML snapshot to the given file, or to stdout when no file is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		snap, err := store.Export(cmd.Context())
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return snap.WriteYAML(cmd.OutOrStdout())
		}

		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("create %s: %w", args[0], err)
		}
		if err := snap.WriteYAML(f); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d namespaces and %d entries to %s\n",
			len(snap.Namespaces), len(snap.Knowledge), args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Merge a YAML snapshot into the store",
	Long: `Merges a snapshot written by "kaizen export". Existing namespaces and
scopes are kept, and entries whose id already exists are skipped. The import
is all or nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer func() { _ = f.Close() }()

		snap, err := knowledge.ReadSnapshot(f)
		if err != nil {
			return err
		}

		store, err := openStore()
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		res, err := store.Import(cmd.Context(), snap)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(),
			"Imported %d namespaces, %d scopes, %d entries (%d skipped)\n",
			res.NamespacesCreated, res.ScopesCreated, res.KnowledgeCreated, res.KnowledgeSkipped)
		return nil
	},
}

// renderTree prints one block per namespace with its scopes and their
// parents.
func renderTree(w io.Writer, list []knowledge.Namespace) {
	nsColor := color.New(color.FgCyan, color.Bold)
	scopeColor := color.New(color.FgGreen)
	dim := color.New(color.FgHiBlack)

	for i, ns := range list {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s\n", nsColor.Sprint(ns.Name), dim.Sprint(ns.Description))
		for j, sc := range ns.Scopes {
			branch := "├── "
			if j == len(ns.Scopes)-1 {
				branch = "└── "
			}
			line := branch + scopeColor.Sprint(sc.Name)
			if len(sc.Parents) > 0 {
				line += dim.Sprint(" <- " + strings.Join(sc.Parents, ", "))
			}
			fmt.Fprintln(w, line)
		}
	}
}
