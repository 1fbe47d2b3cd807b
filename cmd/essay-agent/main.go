package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/essaycoach/constants"
	"github.com/joseph-ayodele/essaycoach/internal/agent"
	"github.com/joseph-ayodele/essaycoach/internal/agent/dify"
	"github.com/joseph-ayodele/essaycoach/internal/agent/transform"
	"github.com/joseph-ayodele/essaycoach/internal/common"
	"github.com/joseph-ayodele/essaycoach/internal/metrics"
	repo "github.com/joseph-ayodele/essaycoach/internal/repository"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every subcommand needs from the environment.
type env struct {
	cfg    *common.Config
	logger *slog.Logger
}

func newRootCommand() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "essay-agent",
		Short:         "Drive the essay-analysis provider from the shell",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load()
			debug, _ := cmd.Flags().GetBool("debug")
			e.logger = common.NewLogger(os.Stderr, debug)
			e.cfg = common.LoadConfig()
			if p, _ := cmd.Flags().GetString("provider"); p != "" {
				e.cfg.Agent.Provider = p
			}
			return e.cfg.ValidateAgent()
		},
	}
	root.PersistentFlags().Bool("debug", false, "enable debug logging")
	root.PersistentFlags().String("provider", "", "override AI_PROVIDER")

	root.AddCommand(newAnalyzeCommand(e))
	root.AddCommand(newStatusCommand(e))
	root.AddCommand(newUploadCommand(e))
	root.AddCommand(newHealthCommand(e))
	return root
}

// newAgent builds the configured provider; rubrics may be nil for calls that never resolve one.
func (e *env) newAgent(rubrics repo.RubricRepository) (agent.EssayAgent, error) {
	rec, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}
	reg := agent.NewRegistry()
	dify.Register(reg)
	return reg.New(e.cfg.Agent.Provider, agent.Deps{
		Config:  e.cfg.Agent,
		Rubrics: rubrics,
		Metrics: rec,
		Logger:  e.logger,
	})
}

func newAnalyzeCommand(e *env) *cobra.Command {
	var (
		in        agent.WorkflowInput
		mode      string
		rubricID  string
		essayFile string
		report    bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze an essay against a stored rubric",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := e.cfg.Validate(); err != nil {
				return err
			}
			if essayFile != "" {
				b, err := os.ReadFile(essayFile)
				if err != nil {
					return err
				}
				in.EssayContent = string(b)
			}
			in.ResponseMode = constants.ResponseMode(mode)
			if rubricID != "" {
				id, err := uuid.Parse(rubricID)
				if err != nil {
					return common.InputValidationError("rubric id must be a UUID", "rubric_id", rubricID)
				}
				in.RubricID = &id
			}

			ctx, reqID := common.EnsureRequestID(cmd.Context())
			e.logger.Debug("essay_agent.analyze.start", "req_id", reqID)

			db, err := repo.Open(ctx, repo.ConfigFrom(e.cfg.Database), e.logger)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer db.Close()

			a, err := e.newAgent(repo.NewRubricRepository(db, e.logger))
			if err != nil {
				return err
			}
			out, err := a.Analyze(ctx, in)
			if err != nil {
				return err
			}
			if report && out.Status == constants.WorkflowSucceeded {
				analysis, err := transform.For(a.ProviderName()).AnalysisOutput(map[string]any{"outputs": out.Outputs})
				if err != nil {
					return err
				}
				return printJSON(analysis)
			}
			return printJSON(out)
		},
	}
	cmd.Flags().StringVar(&in.EssayQuestion, "question", "", "essay question or prompt")
	cmd.Flags().StringVar(&in.EssayContent, "essay", "", "essay text")
	cmd.Flags().StringVar(&essayFile, "essay-file", "", "read the essay text from a file")
	cmd.Flags().StringVar(&in.Language, "language", agent.DefaultLanguage, "language hint")
	cmd.Flags().StringVar(&in.UserID, "user", "", "owner whose rubric library is used")
	cmd.Flags().StringVar(&rubricID, "rubric", "", "rubric id (default: most recent rubric)")
	cmd.Flags().StringVar(&mode, "mode", string(constants.ResponseModeBlocking), "response mode: blocking or streaming")
	cmd.Flags().BoolVar(&report, "report", false, "print the graded analysis instead of the raw run")
	return cmd
}

func newStatusCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "status <run-id>",
		Short: "Show the status of a workflow run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.newAgent(nil)
			if err != nil {
				return err
			}
			out, err := a.PollStatus(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newUploadCommand(e *env) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a document to the provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := e.newAgent(nil)
			if err != nil {
				return err
			}
			if user == "" {
				user = e.cfg.Agent.DefaultUser
			}
			id, err := a.UploadDocument(cmd.Context(), args[0], user)
			if err != nil {
				return err
			}
			return printJSON(map[string]string{"upload_id": id})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "uploading user id")
	return cmd
}

func newHealthCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the provider is reachable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := e.newAgent(nil)
			if err != nil {
				return err
			}
			ok := a.HealthCheck(cmd.Context())
			if err := printJSON(map[string]any{"provider": a.ProviderName(), "configured": a.IsConfigured(), "healthy": ok}); err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is not healthy", a.ProviderName())
			}
			return nil
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
