package reporter

import (
	"encoding/json"
	"io"

	"github.com/upstream-tag-mirror/pkg/reconcile"
)

type JSONReporter struct {
	Out io.Writer
}

func (r *JSONReporter) Report(plan *reconcile.Plan) error {
	enc := json.NewEncoder(r.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}
