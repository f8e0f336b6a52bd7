package commands

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/opticini/auditwatch/internal/classify"
	"github.com/opticini/auditwatch/pkg/models"
	"github.com/opticini/auditwatch/pkg/utils"
)

func printRun(run models.AuditRun) {
	fmt.Printf("Audit #%d  %s  [%s]\n", run.AuditID, run.TargetURL, run.Status)
	if run.StartTime != nil {
		elapsed := time.Since(*run.StartTime)
		if run.EndTime != nil {
			elapsed = run.EndTime.Sub(*run.StartTime)
		}
		fmt.Printf("Elapsed: %s\n", utils.HumanizeDuration(elapsed))
	}

	agg := run.Aggregates
	fmt.Printf("Scans: %d/%d complete, %d failed\n", agg.CompletedScans, agg.TotalScans, agg.FailedScans)
	fmt.Printf("Findings: %d total (%d critical, %d high, %d medium, %d low)\n\n",
		agg.TotalFindings, agg.CriticalFindings, agg.HighFindings, agg.MediumFindings, agg.LowFindings)

	if len(run.Scans) == 0 {
		return
	}

	scans := make([]models.ScanStatus, 0, len(run.Scans))
	for _, sc := range run.Scans {
		scans = append(scans, sc)
	}
	sort.Slice(scans, func(i, j int) bool {
		if scans[i].Category != scans[j].Category {
			return scans[i].Category < scans[j].Category
		}
		return scans[i].ScanType < scans[j].ScanType
	})

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tSCAN\tSTATE\tPROGRESS\tFINDINGS\tDURATION")
	for _, sc := range scans {
		duration := "-"
		if sc.Duration != nil {
			duration = utils.HumanizeDuration(time.Duration(*sc.Duration * float64(time.Second)))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d\t%s\n",
			classify.DisplayName(classify.Category(sc.Category)),
			sc.ScanType, sc.State, sc.Progress, sc.FindingsCount, duration)
	}
	w.Flush()
	fmt.Println()
}

func printFindings(run models.AuditRun) {
	if run.Aggregates.TotalFindings == 0 {
		return
	}

	categories := make([]string, 0, len(run.FindingsByCategory))
	for cat := range run.FindingsByCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		findings := run.FindingsByCategory[cat]
		if len(findings) == 0 {
			continue
		}
		sorted := make([]models.Finding, len(findings))
		copy(sorted, findings)
		sort.SliceStable(sorted, func(i, j int) bool {
			return models.SeverityRank(sorted[i].Severity) < models.SeverityRank(sorted[j].Severity)
		})

		fmt.Printf("%s:\n", classify.DisplayName(classify.Category(cat)))
		for _, f := range sorted {
			fmt.Printf("  [%s] %s\n", f.Severity, utils.Truncate(f.Title, 100))
		}
		fmt.Println()
	}
}
