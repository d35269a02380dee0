package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/dashboard"
	"github.com/spigell/cv-matcher/internal/render"
)

var cvCmd = &cobra.Command{
	Use:   "cv",
	Short: "Manage CVs of a job",
}

var cvUploadCmd = &cobra.Command{
	Use:   "upload <file>...",
	Short: "Upload CV files to a job",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger, _, ctrl := setup()
		ctx := context.Background()

		selectFromFlag(ctx, cmd, logger, ctrl)

		force, _ := cmd.Flags().GetBool("force")
		uploads, err := ctrl.UploadCVs(ctx, args, force)
		if err != nil {
			logger.Fatal("uploading cvs", zap.Error(err))
		}

		out := cmd.OutOrStdout()
		render.Uploads(out, uploads)
		render.Job(out, ctrl.Snapshot().Selected)
	},
}

var cvDeleteCmd = &cobra.Command{
	Use:   "delete <cv-id>",
	Short: "Delete a CV",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger, _, ctrl := setup()
		ctx := context.Background()

		selectFromFlag(ctx, cmd, logger, ctrl)

		if err := ctrl.DeleteCV(ctx, args[0]); err != nil {
			logger.Fatal("deleting cv", zap.Error(err))
		}

		render.Job(cmd.OutOrStdout(), ctrl.Snapshot().Selected)
	},
}

var cvDownloadCmd = &cobra.Command{
	Use:   "download <cv-id>",
	Short: "Download a stored CV file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		logger, _, ctrl := setup()

		path, err := ctrl.DownloadCV(context.Background(), args[0])
		if err != nil {
			logger.Fatal("downloading cv", zap.Error(err))
		}

		cmd.Println(path)
	},
}

func init() {
	rootCmd.AddCommand(cvCmd)
	cvCmd.AddCommand(cvUploadCmd, cvDeleteCmd, cvDownloadCmd)

	for _, c := range []*cobra.Command{cvUploadCmd, cvDeleteCmd} {
		c.Flags().String("job", "", "job id")
		c.MarkFlagRequired("job")
	}
	cvUploadCmd.Flags().BoolP("force", "f", false, "upload files even if a CV with the same name is attached")
}

// selectFromFlag selects the job named by the --job flag or exits.
func selectFromFlag(ctx context.Context, cmd *cobra.Command, logger *zap.Logger, ctrl *dashboard.Controller) {
	jobID, _ := cmd.Flags().GetString("job")

	if _, err := ctrl.SelectJob(ctx, jobID); err != nil {
		logger.Fatal("selecting job", zap.String("job_id", jobID), zap.Error(err))
	}
}
