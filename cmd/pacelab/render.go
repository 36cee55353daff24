package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"pacelab/internal/domain/audit"
	"pacelab/internal/domain/classification"
	"pacelab/internal/domain/model"
	"pacelab/internal/services/modelops"
)

const confidenceNote = "confidence is a distance heuristic in [0,1], not a calibrated probability"

var (
	okText    = color.New(color.FgGreen)
	warnText  = color.New(color.FgYellow)
	errText   = color.New(color.FgRed)
	faintText = color.New(color.Faint)
)

func renderOutcome(w io.Writer, o *modelops.TrainingOutcome) {
	switch {
	case o.Success:
		fmt.Fprintf(w, "%s %s in %s\n", okText.Sprint("✓"), o.Message, o.Duration.Round(time.Millisecond))
	case o.Kind == modelops.KindNoop:
		fmt.Fprintf(w, "%s %s\n", warnText.Sprint("-"), o.Message)
	default:
		fmt.Fprintf(w, "%s training failed (%s): %s\n", errText.Sprint("✗"), o.Kind, o.Message)
	}

	if o.Model != nil && o.Success {
		m := o.Model
		fmt.Fprintf(w, "  model:      %s (v%d)\n", m.ID, m.Version)
		fmt.Fprintf(w, "  samples:    %s\n", humanize.Comma(int64(m.TrainingWindow.Count)))
		fmt.Fprintf(w, "  separation: %.3f\n", m.Metrics.SeparationScore)
		fmt.Fprintf(w, "  activated:  %t\n", o.Activated)
	}
}

func renderStatus(w io.Writer, s *modelops.Status) {
	if !s.Active {
		fmt.Fprintf(w, "%s no active model; classification uses the fallback rule\n", warnText.Sprint("!"))
		return
	}

	m := s.Model
	fmt.Fprintf(w, "Active model %s (v%d)\n", m.ID, m.Version)
	fmt.Fprintf(w, "  trained:    %s\n", humanize.Time(m.TrainedAt))
	if m.ActivatedAt != nil {
		fmt.Fprintf(w, "  activated:  %s\n", humanize.Time(*m.ActivatedAt))
	}
	if m.ParentID != nil {
		fmt.Fprintf(w, "  parent:     %s\n", *m.ParentID)
	}
	fmt.Fprintf(w, "  window:     %s → %s (%s records)\n",
		m.TrainingWindow.Start.Format("2006-01-02"),
		m.TrainingWindow.End.Format("2006-01-02"),
		humanize.Comma(int64(m.TrainingWindow.Count)))
	fmt.Fprintf(w, "  features:   %s\n", strings.Join(m.FeatureColumns, ", "))
	fmt.Fprintf(w, "  separation: %.3f   inertia: %.2f\n", m.SeparationScore, m.Inertia)
	fmt.Fprintf(w, "  confidence: mean %.2f  min %.2f  max %.2f\n",
		m.Confidence.Mean, m.Confidence.Min, m.Confidence.Max)

	if s.Integrity != nil {
		if s.Integrity.OK() {
			fmt.Fprintf(w, "  integrity:  %s\n", okText.Sprint("OK"))
		} else {
			fmt.Fprintf(w, "  integrity:  %s %s\n", errText.Sprint("MISMATCH"), s.Integrity.Detail)
		}
	}
	if !s.Loaded {
		fmt.Fprintf(w, "  %s\n", warnText.Sprint("this process is not serving the active model yet"))
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLUSTER\tLABEL\tCOUNT\tPACE (min..max)\tDISTANCE\tDURATION MIN")
	for _, c := range m.ClusterStats {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%.2f (%.2f..%.2f)\t%.2f\t%.1f\n",
			c.Cluster, c.Label, c.Count, c.MeanPace, c.MinPace, c.MaxPace, c.MeanDistance, c.MeanDuration)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%s\n", faintText.Sprint(confidenceNote))
}

func renderModels(w io.Writer, models []*model.TrainedModel) {
	if len(models) == 0 {
		fmt.Fprintln(w, "No models registered")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tSTATUS\tTRAINED\tSAMPLES\tSEPARATION\tLABELS\tMODEL ID")
	for _, m := range models {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%.3f\t%s\t%s\n",
			m.Version,
			statusText(m.Status),
			humanize.Time(m.TrainedAt),
			m.TrainingWindow.Count,
			m.Metrics.SeparationScore,
			labelList(m.LabelMap),
			m.ID)
	}
	_ = tw.Flush()
}

func renderBatch(w io.Writer, b *modelops.BatchResult) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RECORD\tLABEL\tCONFIDENCE\tMETHOD\tNOTE")
	for _, r := range b.Results {
		note := r.FallbackReason
		if r.ModelVersion != nil {
			note = fmt.Sprintf("model v%d", *r.ModelVersion)
		}
		fmt.Fprintf(tw, "%d\t%s\t%.2f\t%s\t%s\n", r.RecordID, r.Label, r.Confidence, r.Method, note)
	}
	_ = tw.Flush()

	fmt.Fprintf(w, "\n%s classified, %s audit rows stored\n",
		humanize.Comma(int64(len(b.Results))), humanize.Comma(int64(b.AuditStored)))
	for _, warning := range b.Warnings {
		fmt.Fprintf(w, "%s %s\n", warnText.Sprint("warning:"), warning)
	}
	fmt.Fprintln(w, faintText.Sprint(confidenceNote))
}

func renderHistory(w io.Writer, recordID int64, entries []*audit.Entry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "No history for record %d\n", recordID)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tCHANGE\tSOURCE\tMETHOD\tCONFIDENCE\tBY\tREASON")
	for _, e := range entries {
		change := string(e.NewLabel)
		if e.PreviousLabel != nil {
			change = fmt.Sprintf("%s → %s", *e.PreviousLabel, e.NewLabel)
		}
		confidence := "-"
		if e.Confidence != nil {
			confidence = fmt.Sprintf("%.2f", *e.Confidence)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			humanize.Time(e.ChangedAt), change, e.Source, e.Method, confidence, e.ChangedBy, e.Reason)
	}
	_ = tw.Flush()
}

func renderStats(w io.Writer, stats []audit.SourceStats) {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No decisions recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tDECISIONS\tAVG CONFIDENCE")
	for _, st := range stats {
		fmt.Fprintf(tw, "%s\t%s\t%.2f\n", st.Source, humanize.Comma(int64(st.Count)), st.AvgConfidence)
	}
	_ = tw.Flush()
}

func statusText(s model.Status) string {
	switch s {
	case model.StatusActive:
		return okText.Sprint(s)
	case model.StatusFailed, model.StatusDeprecated:
		return errText.Sprint(s)
	}
	return s.String()
}

// labelList renders a label map in cluster order, e.g. "0:run 1:walk"
func labelList(labels map[int]classification.Label) string {
	keys := make([]int, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d:%s", k, labels[k]))
	}
	return strings.Join(parts, " ")
}
