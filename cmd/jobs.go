package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/reconcile"
	"github.com/spigell/cv-matcher/internal/render"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List jobs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		logger, _, ctrl := setup()

		jobs, err := ctrl.RefreshJobs(context.Background())
		if err != nil {
			logger.Fatal("listing jobs", zap.Error(err))
		}

		render.Jobs(cmd.OutOrStdout(), jobs, "")
	},
}

var jobShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job with its CVs ordered by similarity",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger, _, ctrl := setup()

		view, err := ctrl.SelectJob(context.Background(), args[0])
		if errors.Is(err, reconcile.ErrJobNotFound) {
			logger.Fatal("job with given id not found",
				zap.String("job_id", args[0]),
				zap.Strings("existing job titles", ctrl.Snapshot().Jobs.Titles()),
			)
		}
		if err != nil {
			logger.Fatal("loading job", zap.Error(err))
		}

		render.Job(cmd.OutOrStdout(), view)
	},
}

var jobCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a job",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		logger, _, ctrl := setup()

		title, _ := cmd.Flags().GetString("title")
		description, _ := cmd.Flags().GetString("description")

		if err := ctrl.CreateJob(context.Background(), title, description); err != nil {
			logger.Fatal("creating job", zap.Error(err))
		}

		render.Jobs(cmd.OutOrStdout(), ctrl.Snapshot().Jobs, "")
	},
}

var jobDeleteCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger, _, ctrl := setup()

		if err := ctrl.DeleteJob(context.Background(), args[0]); err != nil {
			logger.Fatal("deleting job", zap.Error(err))
		}

		render.Jobs(cmd.OutOrStdout(), ctrl.Snapshot().Jobs, "")
	},
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobShowCmd, jobCreateCmd, jobDeleteCmd)

	jobCreateCmd.Flags().StringP("title", "t", "", "job title")
	jobCreateCmd.Flags().StringP("description", "D", "", "job description")
}
