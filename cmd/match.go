package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/talent-outreach/internal/matching"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Score candidates of an organization against the roles of a project",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("organization", "o", "", "organization id (required)")
	matchCmd.Flags().StringP("project", "p", "", "project whose roles are matched")
	matchCmd.Flags().StringP("role", "r", "", "match against a single role instead of a project")
	matchCmd.Flags().StringP("campaign", "c", "", "store the matches on this campaign")
	matchCmd.Flags().Float64("min-score", matching.DefaultMinScore, "minimum score to keep a candidate")
	matchCmd.Flags().Int("limit", matching.DefaultLimit, "maximum number of matches")
	matchCmd.Flags().StringSlice("candidates", nil, "only score these candidate ids")

	matchCmd.MarkFlagRequired("organization")
}

func match(cmd *cobra.Command) {
	ctx := context.Background()

	config, logger := setup()

	rt, err := newRuntime(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the runtime", zap.Error(err))
	}
	defer rt.close()

	req := matching.Request{
		OrganizationID: cmd.Flag("organization").Value.String(),
		ProjectID:      cmd.Flag("project").Value.String(),
		RoleID:         cmd.Flag("role").Value.String(),
		CampaignID:     cmd.Flag("campaign").Value.String(),
	}

	if cmd.Flags().Changed("min-score") {
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		req.MinScore = &minScore
	}
	if cmd.Flags().Changed("limit") {
		limit, _ := cmd.Flags().GetInt("limit")
		req.Limit = &limit
	}
	req.CandidateIDs, _ = cmd.Flags().GetStringSlice("candidates")

	resp, err := rt.matcher.Run(ctx, req)
	if err != nil {
		logger.Error("matching failed", zap.Error(err))
		return
	}

	logger.Info("matching finished",
		zap.Int("roles_analyzed", resp.RolesAnalyzed),
		zap.Int("candidates_analyzed", resp.CandidatesAnalyzed),
		zap.Int("matched", len(resp.MatchedCandidates)),
	)

	// do not bother error since the response is always serializable
	pretty, _ := json.MarshalIndent(resp, "", "  ")
	fmt.Println(string(pretty))
}
