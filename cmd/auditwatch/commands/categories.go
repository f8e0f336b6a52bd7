package commands

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/opticini/auditwatch/internal/classify"
)

func NewCategoriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List scan categories and the scan types behind them",
		Args:  cobra.NoArgs,
		RunE:  runCategories,
	}
}

func runCategories(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tKEY\tSCAN TYPES")
	for _, cat := range classify.Categories() {
		types := classify.ScanTypes(cat)
		sort.Strings(types)
		label := strings.Join(types, ", ")
		if label == "" {
			label = "(fallback for unrecognized scan types)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", classify.DisplayName(cat), cat, label)
	}
	return w.Flush()
}
