package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/cv-matcher/internal/dashboard"
	"github.com/spigell/cv-matcher/internal/reconcile"
	"github.com/spigell/cv-matcher/internal/render"
)

const (
	PromptSelectJob   = "Select job"
	PromptCreateJob   = "Create job"
	PromptDeleteJob   = "Delete selected job"
	PromptUpload      = "Upload CVs"
	PromptSimilarity  = "Calculate similarity"
	PromptDeleteCV    = "Delete CV"
	PromptDownloadCV  = "Download CV"
	PromptRefresh     = "Refresh"
	PromptExit        = "Exit"
	PromptBack        = "back"
	fieldSeparator    = " | "
	uploadPathsPrompt = "CV files (space separated)"
)

var errExit = errors.New("exit requested")

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Interactive dashboard for jobs, CVs and similarity",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		runDashboard(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}

func runDashboard(out io.Writer) {
	ctx := context.Background()
	logger, _, ctrl := setup()

	logger.Info("starting the cv-matcher dashboard", zap.String("version", version))

	jobs, err := ctrl.RefreshJobs(ctx)
	if err != nil {
		logger.Fatal("loading jobs", zap.Error(err))
	}
	render.Jobs(out, jobs, "")

	for {
		state := ctrl.Snapshot()

		items := []string{PromptSelectJob, PromptCreateJob}
		if state.Selected != nil {
			items = append(items, PromptUpload, PromptSimilarity, PromptDeleteCV, PromptDownloadCV, PromptDeleteJob)
		}
		items = append(items, PromptRefresh, PromptExit)

		label := "Choose an action"
		if state.Selected != nil {
			label = fmt.Sprintf("Job %q", state.Selected.Title)
		}

		prompt := promptui.Select{Label: label, Items: items, Size: len(items)}
		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := handleAction(ctx, out, action, ctrl); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			// Actions are retried by the user, a failed one does not end the session.
			logger.Error("action failed", zap.String("action", action), zap.Error(err))
		}
	}
}

func handleAction(ctx context.Context, out io.Writer, action string, ctrl *dashboard.Controller) error {
	switch action {
	case PromptSelectJob:
		id, err := chooseJob(ctrl)
		if err != nil || id == "" {
			return err
		}
		view, err := ctrl.SelectJob(ctx, id)
		if err != nil {
			return err
		}
		render.Job(out, view)
		return nil
	case PromptCreateJob:
		title, err := ask("Title")
		if err != nil {
			return err
		}
		description, err := ask("Description")
		if err != nil {
			return err
		}
		if err := ctrl.CreateJob(ctx, title, description); err != nil {
			return err
		}
		render.Jobs(out, ctrl.Snapshot().Jobs, ctrl.Snapshot().SelectedID)
		return nil
	case PromptDeleteJob:
		state := ctrl.Snapshot()
		if !confirm(fmt.Sprintf("Delete job %q", state.Selected.Title)) {
			return nil
		}
		if err := ctrl.DeleteJob(ctx, state.SelectedID); err != nil {
			return err
		}
		render.Jobs(out, ctrl.Snapshot().Jobs, "")
		return nil
	case PromptUpload:
		raw, err := ask(uploadPathsPrompt)
		if err != nil {
			return err
		}
		uploads, err := ctrl.UploadCVs(ctx, strings.Fields(raw), false)
		if err != nil {
			return err
		}
		render.Uploads(out, uploads)
		render.Job(out, ctrl.Snapshot().Selected)
		return nil
	case PromptSimilarity:
		text := ctrl.Snapshot().Selected.Description
		if !confirm("Use the job description as job text") {
			var err error
			if text, err = ask("Job text"); err != nil {
				return err
			}
		}
		return calculate(ctx, out, ctrl, text)
	case PromptDeleteCV:
		id, err := chooseCV(ctrl)
		if err != nil || id == "" {
			return err
		}
		if err := ctrl.DeleteCV(ctx, id); err != nil {
			return err
		}
		render.Job(out, ctrl.Snapshot().Selected)
		return nil
	case PromptDownloadCV:
		id, err := chooseCV(ctrl)
		if err != nil || id == "" {
			return err
		}
		path, err := ctrl.DownloadCV(ctx, id)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil
	case PromptRefresh:
		if err := ctrl.RefreshSelected(ctx); err != nil {
			// A vanished job is deselected; show the list instead.
			if !errors.Is(err, reconcile.ErrJobNotFound) {
				return err
			}
		}
		state := ctrl.Snapshot()
		if state.Selected == nil {
			render.Jobs(out, state.Jobs, "")
			return nil
		}
		render.Job(out, state.Selected)
		return nil
	case PromptExit:
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func calculate(ctx context.Context, out io.Writer, ctrl *dashboard.Controller, text string) error {
	results, err := ctrl.CalculateSimilarity(ctx, text)
	render.Results(out, results)
	if err != nil {
		return err
	}
	render.Job(out, ctrl.Snapshot().Selected)
	return nil
}

func chooseJob(ctrl *dashboard.Controller) (string, error) {
	jobs := ctrl.Snapshot().Jobs

	items := make([]string, 0, jobs.Len()+1)
	for _, job := range jobs.Items {
		items = append(items, job.ID+fieldSeparator+job.Title)
	}

	return choose("Choose a job and press ENTER", items)
}

func chooseCV(ctrl *dashboard.Controller) (string, error) {
	view := ctrl.Snapshot().Selected
	if view == nil {
		return "", dashboard.ErrNoJobSelected
	}

	items := make([]string, 0, len(view.CVs)+1)
	for _, cv := range view.CVs {
		items = append(items, cv.ID+fieldSeparator+cv.DisplayName()+fieldSeparator+render.Score(cv.Similarity))
	}

	return choose("Choose a CV and press ENTER", items)
}

// choose returns the id part of the selected item, or "" when back is chosen.
func choose(label string, items []string) (string, error) {
	p := promptui.Select{
		Label: label,
		Items: append(items, PromptBack),
	}

	_, selected, err := p.Run()
	if err != nil {
		return "", err
	}
	if selected == PromptBack {
		return "", nil
	}

	return strings.SplitN(selected, fieldSeparator, 2)[0], nil
}

func ask(label string) (string, error) {
	p := promptui.Prompt{
		Label: label,
		Validate: func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("must not be empty")
			}
			return nil
		},
	}
	return p.Run()
}

func confirm(label string) bool {
	p := promptui.Prompt{Label: label, IsConfirm: true}
	_, err := p.Run()
	return err == nil
}
