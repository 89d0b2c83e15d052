package predict

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// Render writes one line per disease in alphabetical order: the risk and score with
// two decimals, or the disease's error. title maps disease names to display names;
// nil uses the names unchanged.
func Render(w io.Writer, r *Result, title func(string) string) error {
	if title == nil {
		title = func(s string) string { return s }
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DISEASE\tRISK\tSCORE")
	for _, name := range r.Diseases() {
		d := r.Predictions[name]
		if d.Failed() {
			fmt.Fprintf(tw, "%s\tunavailable\t%s\n", title(name), d.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%.2f%%\n", title(name), d.Risk, d.Score)
	}
	return tw.Flush()
}
