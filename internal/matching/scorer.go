package matching

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/spigell/talent-outreach/internal/model"
)

// Rule table weights.
const (
	TitleMaxPoints        = 25
	LocationPoints        = 15
	SkillPoints           = 8
	SkillMaxPoints        = 30
	TagPoints             = 5
	HighIntelligenceBonus = 15
	MidIntelligenceBonus  = 8
	DepartmentPoints      = 10
	MaxScore              = 100

	highIntelligenceThreshold = 70
	midIntelligenceThreshold  = 50
	minTitleWordLength        = 3
	maxListedSkills           = 3
)

type department struct {
	name     string
	keywords []string
}

// departments is checked in order; the first department whose keywords hit the candidate title wins.
var departments = []department{
	{name: "engineering", keywords: []string{"engineer", "developer", "software", "tech"}},
	{name: "marketing", keywords: []string{"marketing", "growth", "brand", "content"}},
	{name: "sales", keywords: []string{"sales", "account", "business development", "revenue"}},
	{name: "design", keywords: []string{"designer", "ux", "ui", "creative"}},
	{name: "product", keywords: []string{"product", "pm"}},
	{name: "finance", keywords: []string{"finance", "accounting", "controller", "cfo"}},
	{name: "hr", keywords: []string{"hr", "people", "talent", "recruit"}},
}

// Score rates how well a candidate fits a role on a 0-100 scale and explains the points in order.
func Score(c *model.Candidate, r *model.Role) (int, []string) {
	var (
		score   int
		reasons []string
	)

	candidateTitle := strings.ToLower(c.CurrentTitle)
	requirements := strings.ToLower(r.Requirements)

	if points, matched := titleAlignment(candidateTitle, strings.ToLower(r.Title)); len(matched) > 0 {
		score += points
		reasons = append(reasons, "Title alignment: "+strings.Join(matched, ", "))
	}

	if locationCompatible(strings.ToLower(strings.TrimSpace(c.Location)), strings.ToLower(strings.TrimSpace(r.Location))) {
		score += LocationPoints
		reasons = append(reasons, "Location compatible")
	}

	if requirements != "" {
		var skills []string
		for _, skill := range c.Skills {
			if s := strings.ToLower(strings.TrimSpace(skill)); s != "" && strings.Contains(requirements, s) {
				skills = append(skills, skill)
			}
		}
		if len(skills) > 0 {
			score += min(len(skills)*SkillPoints, SkillMaxPoints)
			reasons = append(reasons, "Skills match: "+strings.Join(skills[:min(len(skills), maxListedSkills)], ", "))
		}

		var tags []string
		for _, tag := range c.Tags {
			if t := strings.ToLower(strings.TrimSpace(tag)); t != "" && strings.Contains(requirements, t) {
				tags = append(tags, tag)
			}
		}
		if len(tags) > 0 {
			score += len(tags) * TagPoints
			reasons = append(reasons, "Relevant tags: "+strings.Join(tags, ", "))
		}
	}

	switch {
	case c.IntelligenceScore >= highIntelligenceThreshold:
		score += HighIntelligenceBonus
		reasons = append(reasons, "High flight risk - good timing")
	case c.IntelligenceScore >= midIntelligenceThreshold:
		score += MidIntelligenceBonus
		reasons = append(reasons, "Moderate flight risk")
	}

	if name, ok := departmentAlignment(candidateTitle, strings.ToLower(r.Department)); ok {
		score += DepartmentPoints
		reasons = append(reasons, fmt.Sprintf("Department alignment: %s", name))
	}

	return max(0, min(score, MaxScore)), reasons
}

func titleAlignment(candidateTitle, roleTitle string) (int, []string) {
	var words []string
	for _, w := range strings.Fields(roleTitle) {
		if utf8.RuneCountInString(w) >= minTitleWordLength {
			words = append(words, w)
		}
	}
	if len(words) == 0 || candidateTitle == "" {
		return 0, nil
	}

	var matched []string
	for _, w := range words {
		if strings.Contains(candidateTitle, w) {
			matched = append(matched, w)
		}
	}

	ratio := float64(len(matched)) / float64(len(words))
	return int(math.Floor(ratio*TitleMaxPoints + 0.5)), matched
}

func locationCompatible(candidate, role string) bool {
	if strings.Contains(role, "remote") {
		return true
	}
	if candidate == "" || role == "" {
		return false
	}
	return strings.Contains(role, candidate) || strings.Contains(candidate, role)
}

func departmentAlignment(candidateTitle, dept string) (string, bool) {
	if dept == "" || candidateTitle == "" {
		return "", false
	}
	for _, d := range departments {
		if !strings.Contains(dept, d.name) {
			continue
		}
		for _, kw := range d.keywords {
			if strings.Contains(candidateTitle, kw) {
				return d.name, true
			}
		}
	}
	return "", false
}
