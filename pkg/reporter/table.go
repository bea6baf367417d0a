package reporter

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/upstream-tag-mirror/pkg/reconcile"
)

type TableReporter struct {
	Out io.Writer
}

func (r *TableReporter) Report(plan *reconcile.Plan) error {
	if len(plan.Missing) == 0 && len(plan.Excluded) == 0 {
		fmt.Fprintf(r.Out, "Downstream is up to date (%d upstream tags, %d downstream tags).\n",
			plan.Upstream, plan.Downstream)
		return nil
	}

	w := tabwriter.NewWriter(r.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TAG\tACTION")
	fmt.Fprintln(w, "---\t------")
	for _, tag := range plan.Missing {
		fmt.Fprintf(w, "%s\tsync\n", tag)
	}
	for _, tag := range plan.Excluded {
		fmt.Fprintf(w, "%s\texcluded by filter\n", tag)
	}
	return w.Flush()
}
