package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/a3tai/cardiopredict/internal/auth"
	"github.com/a3tai/cardiopredict/internal/config"
	"github.com/a3tai/cardiopredict/internal/features"
	"github.com/a3tai/cardiopredict/internal/history"
	"github.com/a3tai/cardiopredict/internal/logging"
	"github.com/a3tai/cardiopredict/internal/pdf"
	"github.com/a3tai/cardiopredict/internal/predict"
)

// app carries the resolved configuration and I/O shared by every command
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	schema   *features.Schema
	sessions *auth.Store

	in     *bufio.Reader
	out    io.Writer
	errOut io.Writer
	eof    bool
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{in: bufio.NewReader(in), out: out, errOut: errOut}

	root := &cobra.Command{
		Use:   "cardiopredict",
		Short: "Heart disease risk prediction from medical report PDFs",
		Long: `Cardio Predict reads a medical report PDF, finds the clinical features the
risk models need, asks for anything the report does not contain and sends the
completed record to the prediction service.

Results cover stroke, hypertension, heart failure, heart attack and coronary
artery disease.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	config.RegisterFlags(root.PersistentFlags(), config.DefaultConfig())
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(errOut)

	root.AddCommand(
		newPredictCmd(a),
		newExtractCmd(a),
		newSchemaCmd(a),
		newSignupCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newHistoryCmd(a),
		newServeCmd(a),
		newVersionCmd(a),
	)
	return root
}

// init resolves configuration, logging and the schema for the running command
func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}
	if version != "dev" {
		cfg.Version = version
	}
	a.cfg = cfg

	logger, err := setupLogging(cfg, a.errOut, cmd.Name() == "serve")
	if err != nil {
		return err
	}
	a.logger = logger

	if cfg.SchemaFile != "" {
		a.schema, err = features.LoadSchema(cfg.SchemaFile)
		if err != nil {
			return err
		}
	} else {
		a.schema = features.DefaultSchema()
	}

	a.sessions = auth.NewStore(cfg.SessionFile)

	if cfg.IsDebug() {
		logger.Debug("configuration loaded", "config", cfg.String())
	}
	return nil
}

// setupLogging builds the logger. Interactive commands share the terminal with
// prompts, so they only surface warnings unless debug is enabled.
func setupLogging(cfg *config.Config, w io.Writer, serving bool) (*slog.Logger, error) {
	level := cfg.LogLevel
	if !serving && level == "info" {
		level = "warn"
	}
	return logging.New(level, cfg.LogFormat, w)
}

func (a *app) newLoader() *pdf.Loader {
	return pdf.NewLoader(a.cfg.MaxFileSize)
}

func (a *app) newExtractor() *pdf.Extractor {
	return pdf.NewExtractor(pdf.WithWorkers(a.cfg.ExtractWorkers), pdf.WithLogger(a.logger))
}

func (a *app) newPredictClient(session *auth.Context) (*predict.Client, error) {
	return predict.New(a.cfg.PredictURL,
		predict.WithSession(session),
		predict.WithShape(a.cfg.RequestShape),
		predict.WithTimeout(a.cfg.Timeout),
		predict.WithLogger(a.logger),
	)
}

func (a *app) newAuthClient() *auth.Client {
	return auth.NewClient(a.cfg.AuthURL, auth.WithTimeout(a.cfg.Timeout), auth.WithLogger(a.logger))
}

func (a *app) openHistory() (*history.Store, error) {
	return history.Open(a.cfg.HistoryDB)
}

// requireSession returns the signed-in session or auth.ErrNotAuthenticated
func (a *app) requireSession() (*auth.Context, error) {
	session, err := a.sessions.Load()
	if err != nil {
		return nil, err
	}
	if err := session.Require(); err != nil {
		return nil, err
	}
	return session, nil
}

// prompt writes label and reads one trimmed line. io.EOF is returned once input
// is exhausted.
func (a *app) prompt(label string) (string, error) {
	if a.eof {
		return "", io.EOF
	}
	fmt.Fprint(a.out, label)

	line, err := a.in.ReadString('\n')
	if errors.Is(err, io.EOF) {
		a.eof = true
		if line == "" {
			fmt.Fprintln(a.out)
			return "", io.EOF
		}
		err = nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question; anything but y or yes is no
func (a *app) confirm(question string) bool {
	answer, err := a.prompt(question + " [y/N]: ")
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// diseaseTitle maps a disease name to its display title
func (a *app) diseaseTitle(name string) string {
	if d, ok := a.schema.Disease(name); ok {
		return d.Title
	}
	return name
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return nil
		},
		Run: func(*cobra.Command, []string) {
			printVersion(a)
		},
	}
}
