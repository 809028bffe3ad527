package followup

import "github.com/spigell/talent-outreach/internal/model"

// Rule creates a follow-up of TaskType once Days whole days have passed since the last send.
type Rule struct {
	Days     int
	TaskType string
}

// DefaultRules are evaluated in ascending day order.
var DefaultRules = []Rule{
	{Days: 3, TaskType: model.TaskTypeFollowUp1},
	{Days: 7, TaskType: model.TaskTypeFollowUp2},
}
