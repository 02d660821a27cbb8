package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	domain "pricewatch/pkg/types"
)

const timeFormat = "2006-01-02 15:04:05"

// tabWriter wraps tabwriter with error tracking.
type tabWriter struct {
	*tabwriter.Writer
	err error
}

func newTabWriter(w io.Writer) *tabWriter {
	return &tabWriter{Writer: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
}

func (tw *tabWriter) writef(format string, args ...any) {
	if tw.err != nil {
		return
	}
	_, tw.err = fmt.Fprintf(tw.Writer, format, args...)
}

func (tw *tabWriter) finish() error {
	if tw.err != nil {
		return tw.err
	}
	return tw.Flush()
}

func printProductTable(products []domain.Product) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID\tTITLE\tPRICE\tAVAILABLE\tCADENCE\tSTALE\tENABLED\n")
	for i := range products {
		p := &products[i]
		tw.writef("%s\t%s\t%s\t%v\t%s\t%v\t%v\n",
			p.ID,
			truncate(p.Title, 40),
			money(p.CurrentPrice, p.Currency),
			p.Available,
			(time.Duration(p.CadenceSeconds) * time.Second).String(),
			p.Stale,
			p.Enabled,
		)
	}
	return tw.finish()
}

func printProductDetail(p *domain.Product) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID:\t%s\n", p.ID)
	tw.writef("Retailer:\t%s\n", p.RetailerID)
	tw.writef("Title:\t%s\n", p.Title)
	if p.SKU != "" {
		tw.writef("SKU:\t%s\n", p.SKU)
	}
	tw.writef("URL:\t%s\n", p.SourceURL)
	tw.writef("Price:\t%s\n", money(p.CurrentPrice, p.Currency))
	tw.writef("Lowest:\t%s\n", money(p.LowestPrice, p.Currency))
	tw.writef("Highest:\t%s\n", money(p.HighestPrice, p.Currency))
	tw.writef("Available:\t%v\n", p.Available)
	tw.writef("Cadence:\t%s\n", (time.Duration(p.CadenceSeconds) * time.Second).String())
	tw.writef("Priority Score:\t%d\n", p.PriorityScore)
	tw.writef("Failure Streak:\t%d\n", p.FailureStreak)
	tw.writef("Stale:\t%v\n", p.Stale)
	tw.writef("Enabled:\t%v\n", p.Enabled)
	tw.writef("Last Checked:\t%s\n", timeOrDash(p.LastCheckedAt))
	return tw.finish()
}

func printRetailerTable(retailers []domain.Retailer) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID\tNAME\tBASE URL\tREQ/MIN\tBURST\tACTIVE\n")
	for i := range retailers {
		r := &retailers[i]
		tw.writef("%s\t%s\t%s\t%d\t%d\t%v\n",
			r.ID, r.Name, r.BaseURL, r.RequestsPerMinute, r.Burst, r.Active,
		)
	}
	return tw.finish()
}

func printRetailerDetail(r *domain.Retailer) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID:\t%s\n", r.ID)
	tw.writef("Name:\t%s\n", r.Name)
	tw.writef("Base URL:\t%s\n", r.BaseURL)
	tw.writef("Requests/min:\t%d\n", r.RequestsPerMinute)
	tw.writef("Burst:\t%d\n", r.Burst)
	tw.writef("Active:\t%v\n", r.Active)
	return tw.finish()
}

func printRuleTable(rules []domain.AlertRule) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID\tPRODUCT\tUSER\tKIND\tTHRESHOLD\tENABLED\n")
	for i := range rules {
		r := &rules[i]
		tw.writef("%s\t%s\t%s\t%s\t%s\t%v\n",
			r.ID, r.ProductID, r.UserID, r.Kind, money(r.Threshold, ""), r.Enabled,
		)
	}
	return tw.finish()
}

func printRuleDetail(r *domain.AlertRule) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID:\t%s\n", r.ID)
	tw.writef("Product:\t%s\n", r.ProductID)
	tw.writef("User:\t%s\n", r.UserID)
	tw.writef("Kind:\t%s\n", r.Kind)
	tw.writef("Threshold:\t%s\n", money(r.Threshold, ""))
	tw.writef("Enabled:\t%v\n", r.Enabled)
	tw.writef("Created:\t%s\n", r.CreatedAt.Format(timeFormat))
	return tw.finish()
}

func printEventTable(events []domain.AlertEvent) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID\tKIND\tPRODUCT\tPRICE\tDELIVERED\tREAD\tCREATED\n")
	for i := range events {
		ev := &events[i]
		tw.writef("%s\t%s\t%s\t%s\t%v\t%v\t%s\n",
			ev.ID,
			ev.Kind,
			ev.ProductID,
			ev.Price.StringFixed(2),
			ev.Delivered,
			ev.Read,
			ev.CreatedAt.Format(timeFormat),
		)
	}
	return tw.finish()
}

func printEventDetail(ev *domain.AlertEvent) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID:\t%s\n", ev.ID)
	tw.writef("Rule:\t%s\n", ev.RuleID)
	tw.writef("Product:\t%s\n", ev.ProductID)
	tw.writef("User:\t%s\n", ev.UserID)
	tw.writef("Kind:\t%s\n", ev.Kind)
	tw.writef("Price:\t%s\n", ev.Price.StringFixed(2))
	tw.writef("Previous:\t%s\n", money(ev.PreviousPrice, ""))
	tw.writef("Message:\t%s\n", ev.Message)
	tw.writef("Observed:\t%s\n", ev.ObservedAt.Format(timeFormat))
	tw.writef("Delivered:\t%v\n", ev.Delivered)
	tw.writef("Delivered At:\t%s\n", timeOrDash(ev.DeliveredAt))
	tw.writef("Attempts:\t%d\n", ev.DeliveryAttempts)
	tw.writef("Delivery Failed:\t%v\n", ev.DeliveryFailed)
	tw.writef("Read:\t%v\n", ev.Read)
	return tw.finish()
}

func printFailureTable(failures []domain.TaskFailure) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("ID\tKIND\tPRODUCT\tPRIORITY\tATTEMPTS\tSTATUS\tERROR\tFAILED\tACK\n")
	for i := range failures {
		f := &failures[i]
		tw.writef("%s\t%s\t%s\t%s\t%d\t%s\t%s\t%s\t%v\n",
			f.ID,
			f.Kind,
			f.ProductID,
			f.Priority,
			f.Attempts,
			f.FinalStatus,
			truncate(f.LastError, 40),
			f.FailedAt.Format(timeFormat),
			f.Acknowledged,
		)
	}
	return tw.finish()
}

func printQueueStatsTable(stats []domain.QueueStats) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("PRIORITY\tPENDING\tRUNNING\tOLDEST PENDING\n")
	for i := range stats {
		s := &stats[i]
		oldest := "-"
		if s.OldestPendingAge != nil {
			oldest = (time.Duration(*s.OldestPendingAge) * time.Second).String()
		}
		tw.writef("%s\t%d\t%d\t%s\n", s.Priority, s.Pending, s.Running, oldest)
	}
	return tw.finish()
}

func printJobRunsTable(runs []domain.JobRun) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("JOB\tSTATUS\tSTARTED\tCOMPLETED\tROWS\tERROR\n")
	for i := range runs {
		r := &runs[i]
		rows := "-"
		if r.RowsAffected != nil {
			rows = fmt.Sprintf("%d", *r.RowsAffected)
		}
		tw.writef("%s\t%s\t%s\t%s\t%s\t%s\n",
			r.JobName,
			r.Status,
			r.StartedAt.Format(timeFormat),
			timeOrDash(r.CompletedAt),
			rows,
			truncate(r.ErrorText, 40),
		)
	}
	return tw.finish()
}

func printPricePointsTable(points []domain.PricePoint) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("OBSERVED\tPRICE\tCURRENCY\tAVAILABLE\n")
	for i := range points {
		pt := &points[i]
		tw.writef("%s\t%s\t%s\t%v\n",
			pt.ObservedAt.Format(timeFormat),
			pt.Price.StringFixed(2),
			pt.Currency,
			pt.Available,
		)
	}
	return tw.finish()
}

func printDailySummariesTable(days []domain.DailySummary) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("DAY\tOPEN\tCLOSE\tLOW\tHIGH\tSAMPLES\n")
	for i := range days {
		d := &days[i]
		tw.writef("%s\t%s\t%s\t%s\t%s\t%d\n",
			d.Day.Format("2006-01-02"),
			d.Open.StringFixed(2),
			d.Close.StringFixed(2),
			d.Low.StringFixed(2),
			d.High.StringFixed(2),
			d.Count,
		)
	}
	return tw.finish()
}

func printVolatilityTable(s *domain.VolatilitySummary) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("DAY\tLOW\tHIGH\tAVG\tSTDDEV\tSAMPLES\n")
	for i := range s.Days {
		d := &s.Days[i]
		tw.writef("%s\t%s\t%s\t%s\t%s\t%d\n",
			d.Day.Format("2006-01-02"),
			d.Low.StringFixed(2),
			d.High.StringFixed(2),
			d.Avg.StringFixed(2),
			d.StdDev.StringFixed(2),
			d.Samples,
		)
	}
	return tw.finish()
}

func printTrendTable(s *domain.TrendSummary) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("DAY\tOPEN\tCLOSE\tDELTA\tDELTA %%\n")
	for i := range s.Days {
		d := &s.Days[i]
		tw.writef("%s\t%s\t%s\t%s\t%+.2f%%\n",
			d.Day.Format("2006-01-02"),
			d.Open.StringFixed(2),
			d.Close.StringFixed(2),
			d.Delta.StringFixed(2),
			d.DeltaPct,
		)
	}
	tw.writef("\nWindow:\t%s -> %s (%s)\n",
		s.WindowOpen.StringFixed(2),
		s.WindowClose.StringFixed(2),
		s.WindowDelta.StringFixed(2),
	)
	return tw.finish()
}

func printInsightDetail(s *domain.InsightSummary) error {
	tw := newTabWriter(os.Stdout)
	tw.writef("Samples:\t%d\n", s.SampleCount)
	tw.writef("P10:\t%s\n", s.Bands.P10.StringFixed(2))
	tw.writef("P25:\t%s\n", s.Bands.P25.StringFixed(2))
	tw.writef("P50:\t%s\n", s.Bands.P50.StringFixed(2))
	tw.writef("P75:\t%s\n", s.Bands.P75.StringFixed(2))
	tw.writef("P90:\t%s\n", s.Bands.P90.StringFixed(2))
	tw.writef("Current:\t%s\n", money(s.CurrentPrice, ""))
	if s.CurrentBand != "" {
		tw.writef("Current Band:\t%s\n", s.CurrentBand)
	}
	if len(s.BestMonths) > 0 {
		tw.writef("\nRANK\tMONTH\tAVG PRICE\tSAMPLES\n")
		for i := range s.BestMonths {
			m := &s.BestMonths[i]
			tw.writef("%d\t%s\t%s\t%d\n", m.Rank, m.Month, m.AvgPrice.StringFixed(2), m.Samples)
		}
	}
	return tw.finish()
}

func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// money renders a nullable price. The currency suffix is omitted when
// unknown so threshold columns stay compact.
func money(d *decimal.Decimal, currency string) string {
	if d == nil {
		return "-"
	}
	if currency == "" {
		return d.StringFixed(2)
	}
	return d.StringFixed(2) + " " + currency
}

func timeOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeFormat)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
