// Package validate checks generated dashboards and rule expressions against
// the set of metrics the server actually exports, so a renamed metric breaks
// the build instead of silently blanking a panel.
package validate

import (
	"fmt"
	"strings"

	"github.com/grafana/grafana-foundation-sdk/go/dashboard"
	"github.com/grafana/grafana-foundation-sdk/go/prometheus"
	"github.com/prometheus/prometheus/model/labels"
	"github.com/prometheus/prometheus/promql/parser"
)

// Result accumulates validation findings. Errors fail generation; warnings
// are printed but do not.
type Result struct {
	Errors   []string
	Warnings []string
}

// Ok reports whether validation passed.
func (r Result) Ok() bool { return len(r.Errors) == 0 }

// Merge folds other into r.
func (r *Result) Merge(other Result) {
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Dashboard checks every Prometheus query in the dashboard: each expression
// must parse as PromQL and may only select known metric names.
func Dashboard(dash dashboard.Dashboard, known map[string]bool) Result {
	var res Result
	for _, p := range dash.Panels {
		if p.Panel != nil {
			checkPanel(*p.Panel, known, &res)
		}
		if p.RowPanel != nil {
			for _, inner := range p.RowPanel.Panels {
				checkPanel(inner, known, &res)
			}
		}
	}
	return res
}

// Expr checks a single PromQL expression. The context string names the
// panel or rule the expression came from.
func Expr(context, expr string, known map[string]bool) Result {
	var res Result
	checkExpr(context, expr, known, &res)
	return res
}

func checkPanel(p dashboard.Panel, known map[string]bool, res *Result) {
	title := "(untitled)"
	if p.Title != nil {
		title = *p.Title
	}
	if len(p.Targets) == 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("panel %q has no queries", title))
		return
	}
	for _, t := range p.Targets {
		switch q := t.(type) {
		case prometheus.Dataquery:
			checkExpr(fmt.Sprintf("panel %q", title), q.Expr, known, res)
		case *prometheus.Dataquery:
			checkExpr(fmt.Sprintf("panel %q", title), q.Expr, known, res)
		default:
			res.Warnings = append(res.Warnings, fmt.Sprintf("panel %q has a non-Prometheus query", title))
		}
	}
}

func checkExpr(context, expr string, known map[string]bool, res *Result) {
	ast, err := parser.ParseExpr(expr)
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", context, err))
		return
	}
	parser.Inspect(ast, func(node parser.Node, _ []parser.Node) error {
		vs, ok := node.(*parser.VectorSelector)
		if !ok {
			return nil
		}
		name := vs.Name
		if name == "" {
			for _, m := range vs.LabelMatchers {
				if m.Name == labels.MetricName && m.Type == labels.MatchEqual {
					name = m.Value
				}
			}
		}
		if name == "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: selector without a metric name", context))
			return nil
		}
		if !known[seriesBase(name)] {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: unknown metric %q", context, name))
		}
		return nil
	})
}

// seriesBase strips the synthetic histogram series suffixes so that
// pw_scrape_duration_seconds_bucket resolves to the declared metric name.
func seriesBase(name string) string {
	for _, suffix := range []string{"_bucket", "_sum", "_count"} {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}
