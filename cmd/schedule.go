package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/followup"
)

const (
	PromptYes    = "Yes"
	PromptNo     = "No"
	PromptReport = "Show the dry run report"
)

var prompt = promptui.Select{
	Label: "Create follow-ups?",
	Items: []string{PromptYes, PromptNo, PromptReport},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the follow-up scheduler for an organization",
	Run: func(cmd *cobra.Command, _ []string) {
		schedule(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().StringP("organization", "o", "", "organization id (required)")
	scheduleCmd.Flags().StringP("campaign", "c", "", "only look at tasks of this campaign")
	scheduleCmd.Flags().BoolP("force", "f", false, "ignore the throttle window")
	scheduleCmd.Flags().Bool("dry-run", false, "only report what would be created")
	scheduleCmd.Flags().BoolP("auto-approve", "y", false, "do not ask for confirmation before creating follow-ups")

	scheduleCmd.MarkFlagRequired("organization")
}

func schedule(cmd *cobra.Command) {
	ctx := context.Background()

	config, logger := setup()

	rt, err := newRuntime(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the runtime", zap.Error(err))
	}
	defer rt.close()

	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	autoApprove, _ := cmd.Flags().GetBool("auto-approve")

	req := followup.Request{
		OrganizationID: cmd.Flag("organization").Value.String(),
		CampaignID:     cmd.Flag("campaign").Value.String(),
		Force:          force,
	}

	if !dryRun && !autoApprove {
		proceed, err := confirm(ctx, rt.scheduler, req, logger)
		if err != nil {
			logger.Error("exiting", zap.Error(err))
			return
		}
		if !proceed {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
		// The preview already passed the throttle window.
		req.Force = true
	}

	req.DryRun = dryRun
	resp, err := rt.scheduler.Run(ctx, req)
	if err != nil {
		logger.Error("scheduler run failed", zap.Error(err))
		return
	}

	printResponse(resp)
}

// confirm previews the run with a dry run and asks before writing anything.
func confirm(ctx context.Context, scheduler *followup.Service, req followup.Request, logger *zap.Logger) (bool, error) {
	preview := req
	preview.DryRun = true

	resp, err := scheduler.Run(ctx, preview)
	if err != nil {
		return false, err
	}
	if resp.Throttled {
		printResponse(resp)
		return false, nil
	}
	if resp.FollowUpsCreated == 0 {
		logger.Info("nothing to schedule", zap.Int("sent_tasks_analyzed", resp.SentTasksAnalyzed))
		return false, nil
	}

	logger.Info("follow-ups ready to be created", zap.Int("count", resp.FollowUpsCreated))

	for {
		_, action, err := prompt.Run()
		if err != nil {
			return false, err
		}

		switch action {
		case PromptYes:
			return true, nil
		case PromptNo:
			return false, nil
		case PromptReport:
			printResponse(resp)
		default:
			return false, fmt.Errorf("invalid action: %s", action)
		}
	}
}

func printResponse(resp *followup.Response) {
	// do not bother error since the response is always serializable
	pretty, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(pretty))
}
