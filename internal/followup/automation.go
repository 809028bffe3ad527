package followup

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/spigell/talent-outreach/internal/model"
)

// AutomationConfig is the part of a campaign's automation_config the scheduler reads.
type AutomationConfig struct {
	AutoApproveFollowups bool     `mapstructure:"auto_approve_followups"`
	Enabled              bool     `mapstructure:"enabled"`
	Channels             []string `mapstructure:"channels"`
}

// DecodeAutomation reads the campaign's automation settings. String booleans such as "true" are accepted.
func DecodeAutomation(raw model.JSONMap) (AutomationConfig, error) {
	var cfg AutomationConfig
	if len(raw) == 0 {
		return cfg, nil
	}
	if err := mapstructure.WeakDecode(map[string]any(raw), &cfg); err != nil {
		return AutomationConfig{}, fmt.Errorf("decode automation config: %w", err)
	}
	return cfg, nil
}
