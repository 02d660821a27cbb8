package web

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"

	domain "pricewatch/pkg/types"
)

type statusData struct {
	Version     string
	GeneratedAt time.Time
	Healthy     bool

	Tracked int
	Stale   int

	Queues       []domain.QueueStats
	Jobs         []domain.JobRun
	Failures     []domain.TaskFailure
	RecentEvents []domain.AlertEvent
}

// pageWriter collects the first write error so the render functions can
// stay flat.
type pageWriter struct {
	w   io.Writer
	err error
}

func (p *pageWriter) raw(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s)
}

func (p *pageWriter) rawf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *pageWriter) text(s string) {
	p.raw(templ.EscapeString(s))
}

// statusPage is a hand-assembled templ component; the page is small
// enough that plain writes beat a template generation step.
func statusPage(d statusData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		pw := &pageWriter{w: w}
		writeHead(pw)
		writeHeader(pw, d)
		writeQueues(pw, d.Queues)
		writeJobs(pw, d.Jobs)
		writeFailures(pw, d.Failures)
		writeEvents(pw, d.RecentEvents)
		pw.raw(`</main></body></html>`)
		return pw.err
	})
}

const pageCSS = `body{font-family:ui-monospace,monospace;background:#14161a;color:#d8dee9;margin:0}` +
	`main{max-width:64rem;margin:0 auto;padding:1.5rem}` +
	`h1{font-size:1.2rem}h2{font-size:.95rem;margin-top:1.6rem;color:#8fbcbb}` +
	`table{border-collapse:collapse;width:100%;font-size:.85rem}` +
	`th,td{text-align:left;padding:.3rem .6rem;border-bottom:1px solid #2e3440}` +
	`th{color:#81a1c1}` +
	`.ok{color:#a3be8c}.bad{color:#bf616a}.muted{color:#6f7784}` +
	`.pill{padding:.05rem .45rem;border-radius:.6rem;background:#2e3440}`

func writeHead(p *pageWriter) {
	p.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
	p.raw(`<meta http-equiv="refresh" content="30">`)
	p.raw(`<title>pricewatch status</title>`)
	p.raw(`<style>` + pageCSS + `</style></head><body><main>`)
}

func writeHeader(p *pageWriter, d statusData) {
	p.raw(`<h1>pricewatch <span class="muted">`)
	p.text(d.Version)
	p.raw(`</span></h1><p>`)
	if d.Healthy {
		p.raw(`<span class="pill ok">database ok</span>`)
	} else {
		p.raw(`<span class="pill bad">database unreachable</span>`)
	}
	p.rawf(` <span class="pill">%d tracked</span>`, d.Tracked)
	if d.Stale > 0 {
		p.rawf(` <span class="pill bad">%d stale</span>`, d.Stale)
	}
	p.raw(` <span class="muted">as of `)
	p.text(d.GeneratedAt.Format("2006-01-02 15:04:05 UTC"))
	p.raw(`</span></p>`)
}

func writeQueues(p *pageWriter, queues []domain.QueueStats) {
	p.raw(`<h2>Queues</h2><table><tr><th>class</th><th>pending</th><th>running</th><th>oldest pending</th></tr>`)
	for _, q := range queues {
		p.raw(`<tr><td>`)
		p.text(string(q.Priority))
		p.raw(`</td><td>` + strconv.Itoa(q.Pending) + `</td><td>` + strconv.Itoa(q.Running) + `</td><td>`)
		p.text(formatAge(q.OldestPendingAge))
		p.raw(`</td></tr>`)
	}
	p.raw(`</table>`)
}

func writeJobs(p *pageWriter, jobs []domain.JobRun) {
	p.raw(`<h2>Scheduled jobs</h2><table><tr><th>job</th><th>status</th><th>started</th><th>rows</th><th>error</th></tr>`)
	for _, j := range jobs {
		p.raw(`<tr><td>`)
		p.text(j.JobName)
		p.raw(`</td><td><span class="` + statusClass(j.Status) + `">`)
		p.text(j.Status)
		p.raw(`</span></td><td>`)
		p.text(j.StartedAt.UTC().Format("2006-01-02 15:04:05"))
		p.raw(`</td><td>`)
		if j.RowsAffected != nil {
			p.raw(strconv.Itoa(*j.RowsAffected))
		} else {
			p.raw(`<span class="muted">-</span>`)
		}
		p.raw(`</td><td class="muted">`)
		p.text(truncate(j.ErrorText, 80))
		p.raw(`</td></tr>`)
	}
	p.raw(`</table>`)
}

func writeFailures(p *pageWriter, failures []domain.TaskFailure) {
	p.raw(`<h2>Triage</h2>`)
	if len(failures) == 0 {
		p.raw(`<p class="muted">no unacknowledged failures</p>`)
		return
	}
	p.raw(`<table><tr><th>kind</th><th>product</th><th>attempts</th><th>final</th><th>error</th><th>failed at</th></tr>`)
	for _, f := range failures {
		p.raw(`<tr><td>`)
		p.text(string(f.Kind))
		p.raw(`</td><td>`)
		p.text(f.ProductID)
		p.raw(`</td><td>` + strconv.Itoa(f.Attempts) + `</td><td class="bad">`)
		p.text(string(f.FinalStatus))
		p.raw(`</td><td class="muted">`)
		p.text(truncate(f.LastError, 80))
		p.raw(`</td><td>`)
		p.text(f.FailedAt.UTC().Format("2006-01-02 15:04:05"))
		p.raw(`</td></tr>`)
	}
	p.raw(`</table>`)
}

func writeEvents(p *pageWriter, events []domain.AlertEvent) {
	p.raw(`<h2>Recent alerts</h2>`)
	if len(events) == 0 {
		p.raw(`<p class="muted">no alerts yet</p>`)
		return
	}
	p.raw(`<table><tr><th>kind</th><th>message</th><th>observed</th><th>delivered</th></tr>`)
	for _, e := range events {
		p.raw(`<tr><td>`)
		p.text(string(e.Kind))
		p.raw(`</td><td>`)
		p.text(e.Message)
		p.raw(`</td><td>`)
		p.text(e.ObservedAt.UTC().Format("2006-01-02 15:04:05"))
		p.raw(`</td><td>`)
		if e.Delivered {
			p.raw(`<span class="ok">yes</span>`)
		} else {
			p.raw(`<span class="muted">pending</span>`)
		}
		p.raw(`</td></tr>`)
	}
	p.raw(`</table>`)
}

func statusClass(status string) string {
	switch status {
	case "succeeded":
		return "ok"
	case "running":
		return "muted"
	default:
		return "bad"
	}
}

func formatAge(seconds *float64) string {
	if seconds == nil {
		return "-"
	}
	d := time.Duration(*seconds * float64(time.Second))
	return d.Truncate(time.Second).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
