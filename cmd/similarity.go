package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/render"
	"github.com/spigell/cv-matcher/internal/submission"
)

var similarityCmd = &cobra.Command{
	Use:   "similarity",
	Short: "Score every CV of a job against the job text",
	Long: `Score every CV of a job against the job text.
The job description is used unless --text is given. Results are printed first,
then the job with its CVs ordered by the refreshed similarity.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		logger, _, ctrl := setup()
		ctx := context.Background()

		selectFromFlag(ctx, cmd, logger, ctrl)

		text, _ := cmd.Flags().GetString("text")
		if strings.TrimSpace(text) == "" {
			text = ctrl.Snapshot().Selected.Description
		}

		out := cmd.OutOrStdout()

		results, err := ctrl.CalculateSimilarity(ctx, text)
		render.Results(out, results)
		if errors.Is(err, submission.ErrNothingToSubmit) {
			return
		}
		if err != nil {
			logger.Fatal("calculating similarity", zap.Error(err))
		}

		render.Job(out, ctrl.Snapshot().Selected)
	},
}

func init() {
	rootCmd.AddCommand(similarityCmd)

	similarityCmd.Flags().String("job", "", "job id")
	similarityCmd.MarkFlagRequired("job")
	similarityCmd.Flags().String("text", "", "job text to score against. Default is the job description.")
	similarityCmd.Flags().String("strategy", "", "how requests are issued: concurrent or sequential")
	similarityCmd.Flags().Int("max-in-flight", 0, "cap on concurrent requests. 0 means no cap.")
	similarityCmd.Flags().Duration("delay", 0, "pause between sequential requests")

	viper.BindPFlag("similarity.strategy", similarityCmd.Flags().Lookup("strategy"))
	viper.BindPFlag("similarity.max-in-flight", similarityCmd.Flags().Lookup("max-in-flight"))
	viper.BindPFlag("similarity.delay", similarityCmd.Flags().Lookup("delay"))
}
