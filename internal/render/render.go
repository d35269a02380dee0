package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/spigell/cv-matcher/internal/dashboard"
	"github.com/spigell/cv-matcher/internal/matcher"
	"github.com/spigell/cv-matcher/internal/reconcile"
	"github.com/spigell/cv-matcher/internal/submission"
)

const noValue = "-"

var (
	title    = color.New(color.Bold)
	selected = color.New(color.FgCyan, color.Bold)
	failure  = color.New(color.FgRed)
	warning  = color.New(color.FgYellow)
	good     = color.New(color.FgGreen)
)

// Size formats a byte size in kilobytes with one decimal.
func Size(bytes int64) string {
	if bytes <= 0 {
		return noValue
	}
	return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
}

// Score formats a similarity as a percentage with one decimal. A missing
// score is shown as "-", never as zero.
func Score(score *float64) string {
	if score == nil {
		return noValue
	}
	return fmt.Sprintf("%.1f%%", *score*100)
}

func Jobs(w io.Writer, jobs *matcher.Jobs, selectedID string) {
	if jobs.Len() == 0 {
		fmt.Fprintln(w, "No jobs yet.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCVS")
	for _, job := range jobs.Items {
		line := fmt.Sprintf("%s\t%s\t%d", job.ID, job.Title, countCVs(job))
		if job.ID == selectedID {
			line = selected.Sprint(line + "\t*")
		}
		fmt.Fprintln(tw, line)
	}
	tw.Flush()
}

// countCVs is a rough count for the job list; the selected job view is exact.
func countCVs(job *matcher.Job) int {
	switch v := job.CVs.(type) {
	case []any:
		return len(v)
	case map[string]any:
		if list, ok := v["CVs"].([]any); ok {
			return len(list)
		}
		if list, ok := v["data"].([]any); ok {
			return len(list)
		}
		if v["CVs"] != nil {
			return 1
		}
	}
	return 0
}

// Job prints the selected job with its CVs ordered as in the view.
func Job(w io.Writer, view *reconcile.JobView) {
	if view == nil {
		fmt.Fprintln(w, "No job selected.")
		return
	}

	title.Fprintln(w, view.Title)
	if view.Description != "" {
		fmt.Fprintln(w, view.Description)
	}
	fmt.Fprintln(w)

	if len(view.CVs) == 0 {
		fmt.Fprintln(w, "No CVs uploaded.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tSIZE\tSIMILARITY\tFILE")
		for _, cv := range view.CVs {
			file := ""
			if cv.Downloadable() {
				file = "download"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", cv.ID, cv.DisplayName(), Size(cv.Size), Score(cv.Similarity), file)
		}
		tw.Flush()
	}

	Advisories(w, view.Advisories)

	for _, e := range view.DataErrors {
		warning.Fprintf(w, "skipped malformed entry: %s\n", e)
	}
}

func Advisories(w io.Writer, advisories []reconcile.Advisory) {
	if len(advisories) == 0 {
		return
	}

	fmt.Fprintln(w)
	title.Fprintln(w, "Missing keywords")
	for _, a := range advisories {
		line := "- " + a.Requirement
		if a.Status != "" {
			line += " [" + a.Status + "]"
		}
		if a.Score != nil {
			line += " " + Score(a.Score)
		}
		fmt.Fprintln(w, line)
		if a.Advice != "" {
			fmt.Fprintln(w, "  "+a.Advice)
		}
	}
}

// Results prints one line per submission result, errors inline.
func Results(w io.Writer, results []submission.Result) {
	for _, r := range results {
		name := r.Name
		if name == "" {
			name = r.CVID
		}

		switch {
		case r.Failed() && name == "":
			failure.Fprintln(w, r.Error)
		case r.Failed():
			fmt.Fprintf(w, "%s: %s\n", name, failure.Sprint(strings.TrimSpace(r.Error)))
		case r.Score == nil:
			fmt.Fprintf(w, "%s: %s\n", name, warning.Sprint(Score(nil)))
		default:
			fmt.Fprintf(w, "%s: %s\n", name, good.Sprint(Score(r.Score)))
		}
	}
}

func Uploads(w io.Writer, uploads []dashboard.Upload) {
	if len(uploads) == 0 {
		fmt.Fprintln(w, "Nothing uploaded.")
		return
	}

	for _, u := range uploads {
		if u.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", u.Name, failure.Sprint(u.Error))
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", u.Name, good.Sprint("uploaded"))
		fmt.Fprintf(w, "  %s\n", u.Preview)
	}
}
