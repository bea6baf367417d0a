package reporter

import (
	"io"

	"github.com/upstream-tag-mirror/pkg/reconcile"
)

type Reporter interface {
	Report(plan *reconcile.Plan) error
}

func New(format string, w io.Writer) Reporter {
	switch format {
	case "json":
		return &JSONReporter{Out: w}
	default:
		return &TableReporter{Out: w}
	}
}
