package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/a3tai/cardiopredict/internal/auth"
	"github.com/a3tai/cardiopredict/internal/features"
	"github.com/a3tai/cardiopredict/internal/matcher"
	"github.com/a3tai/cardiopredict/internal/pdf"
	"github.com/a3tai/cardiopredict/internal/predict"
	"github.com/a3tai/cardiopredict/internal/reconcile"
)

func newPredictCmd(a *app) *cobra.Command {
	var (
		values   []string
		noPrompt bool
	)

	cmd := &cobra.Command{
		Use:   "predict <report.pdf>",
		Short: "Predict heart disease risk from a report",
		Long: `Extract the clinical features from a report PDF, ask for any that are missing
and submit the completed record for prediction.

Missing values can also be given up front with --value, for example
  cardiopredict predict report.pdf --value smoking_status=never --value BMI=24.1`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manual, err := parseValues(values)
			if err != nil {
				return err
			}
			return a.runPredict(cmd.Context(), args[0], manual, noPrompt)
		},
	}

	cmd.Flags().StringArrayVar(&values, "value", nil, "Value for a missing feature as name=value (repeatable)")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Fail instead of asking for missing values or retrying")
	return cmd
}

// parseValues turns name=value flags into manual entries
func parseValues(values []string) (map[string]string, error) {
	out := make(map[string]string, len(values))
	for _, kv := range values {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --value %q: expected name=value", kv)
		}
		out[name] = strings.TrimSpace(value)
	}
	return out, nil
}

func (a *app) runPredict(ctx context.Context, path string, manual map[string]string, noPrompt bool) error {
	for name := range manual {
		if !a.schema.Has(name) {
			return fmt.Errorf("unknown feature %q (see 'cardiopredict schema')", name)
		}
	}

	session, err := a.requireSession()
	if err != nil {
		return err
	}

	doc, err := a.newLoader().LoadFile(path)
	if err != nil {
		return err
	}

	client, err := a.newPredictClient(session)
	if err != nil {
		return err
	}

	rs := reconcile.NewSession(a.schema, a.newExtractor(), client, reconcile.WithLogger(a.logger))

	err = rs.Upload(ctx, doc.Data)
	for {
		switch rs.State() {
		case reconcile.Failed:
			return extractionFailure(err)

		case reconcile.AwaitingManualInput:
			err = a.completeManually(ctx, rs, manual, noPrompt)
			manual = nil

			var incomplete *reconcile.IncompleteError
			if errors.As(err, &incomplete) {
				if noPrompt || a.eof {
					return err
				}
				fmt.Fprintf(a.errOut, "Cannot submit yet: %v\n", err)
				continue
			}
			if err != nil && rs.State() != reconcile.SubmissionFailed {
				return err
			}

		case reconcile.SubmissionFailed:
			fmt.Fprintf(a.errOut, "Prediction failed: %v\n", rs.Err())
			if noPrompt || !a.confirm("Retry the prediction?") {
				return rs.Err()
			}
			err = rs.Retry(ctx)
			if err != nil && rs.State() != reconcile.SubmissionFailed {
				return err
			}

		case reconcile.Completed:
			return a.reportResult(ctx, session, rs)

		default:
			if err != nil {
				return err
			}
			return fmt.Errorf("unexpected session state %s", rs.State())
		}
	}
}

// completeManually applies flag values and prompts for the remaining missing
// features, then asks the session to submit.
func (a *app) completeManually(ctx context.Context, rs *reconcile.Session, manual map[string]string, noPrompt bool) error {
	for name, value := range manual {
		err := rs.SetManual(name, value)
		if errors.Is(err, reconcile.ErrUnknownField) {
			fmt.Fprintf(a.errOut, "Ignoring --value %s: the report already provides it\n", name)
			continue
		}
		if err != nil {
			return err
		}
	}

	missing := rs.Missing()
	if !noPrompt && len(missing) > 0 {
		fmt.Fprintf(a.out, "%d of %d features were not found in the report. Please enter them:\n",
			len(missing), a.schema.Len())
		for _, name := range missing {
			value, err := a.prompt(fmt.Sprintf("  %s%s: ", name, a.neededBy(name)))
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return err
			}
			if err := rs.SetManual(name, value); err != nil {
				return err
			}
		}
	}

	return rs.SubmitManual(ctx)
}

// neededBy lists the diseases that use feature, for prompts
func (a *app) neededBy(feature string) string {
	names := a.schema.DiseasesFor(feature)
	if len(names) == 0 {
		return ""
	}
	titles := make([]string, len(names))
	for i, n := range names {
		titles[i] = a.diseaseTitle(n)
	}
	return " (" + strings.Join(titles, ", ") + ")"
}

func (a *app) reportResult(ctx context.Context, session *auth.Context, rs *reconcile.Session) error {
	result := rs.Result()

	fmt.Fprintln(a.out, "Risk assessment:")
	if err := predict.Render(a.out, result, a.diseaseTitle); err != nil {
		return err
	}

	if session.Email == "" {
		return nil
	}

	store, err := a.openHistory()
	if err != nil {
		a.logger.WarnContext(ctx, "history unavailable", "error", err)
		return nil
	}
	defer store.Close()

	if _, err := store.Record(ctx, session.Email, rs.ID(), result); err != nil {
		a.logger.WarnContext(ctx, "failed to record history", "session", rs.ID(), "error", err)
	}
	return nil
}

func extractionFailure(err error) error {
	var ee *pdf.ExtractionError
	if errors.As(err, &ee) {
		return fmt.Errorf("%s (%w)", ee.UserMessage(), err)
	}
	return err
}

func newExtractCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "extract <report.pdf>",
		Short: "Show the features found in a report without submitting it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runExtract(cmd.Context(), args[0], asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record and missing features as JSON")
	return cmd
}

func (a *app) runExtract(ctx context.Context, path string, asJSON bool) error {
	doc, err := a.newLoader().LoadFile(path)
	if err != nil {
		return err
	}

	extractor := a.newExtractor()
	info, err := extractor.Inspect(doc.Data)
	if err != nil {
		return extractionFailure(err)
	}

	text, err := extractor.Extract(ctx, doc.Data)
	if err != nil {
		return extractionFailure(err)
	}

	record := matcher.NewRegexMatcher().Match(text, a.schema)
	missing := features.Missing(record, a.schema)

	if asJSON {
		if missing == nil {
			missing = []string{}
		}
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"path":    doc.Name,
			"pages":   info.Pages,
			"record":  record,
			"missing": missing,
		})
	}

	fmt.Fprintf(a.out, "Report: %s (%d pages, PDF %s)\n", doc.Name, info.Pages, info.Version)
	if info.Encrypted {
		fmt.Fprintln(a.out, "Note: the document is encrypted; some text may be unreadable.")
	}
	fmt.Fprintf(a.out, "\nFound %d of %d features:\n", len(record), a.schema.Len())
	for _, name := range a.schema.Names() {
		if v, ok := record[name]; ok {
			fmt.Fprintf(a.out, "  %-28s %s\n", name, v)
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(a.out, "\nMissing %d:\n", len(missing))
		for _, name := range missing {
			fmt.Fprintf(a.out, "  %s%s\n", name, a.neededBy(name))
		}
	}
	return nil
}

func newSchemaCmd(a *app) *cobra.Command {
	var disease string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "List the features each risk model requires",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			diseases := a.schema.Diseases()
			if disease != "" {
				d, ok := a.schema.Disease(disease)
				if !ok {
					return fmt.Errorf("unknown disease %q", disease)
				}
				diseases = []features.Disease{d}
			}

			fmt.Fprintf(a.out, "%d features in total\n", a.schema.Len())
			for _, d := range diseases {
				fmt.Fprintf(a.out, "\n%s [%s] (%d):\n", d.Title, d.Name, len(d.Features))
				for _, f := range d.Features {
					fmt.Fprintf(a.out, "  %s\n", f)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&disease, "disease", "", "Only list features for this disease")
	return cmd
}
