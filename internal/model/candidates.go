package model

import "strings"

const (
	CandidateIDField     = "ID"
	CandidateStatusField = "Status"
	CandidateStageField  = "Stage"
)

// Candidates is an ordered candidate list. Every mutation keeps the query order.
type Candidates struct {
	Items []*Candidate
}

func NewCandidates(items []Candidate) *Candidates {
	c := &Candidates{Items: make([]*Candidate, 0, len(items))}
	for i := range items {
		c.Items = append(c.Items, &items[i])
	}
	return c
}

func (c *Candidates) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

func (c *Candidates) FindByID(id string) *Candidate {
	for _, candidate := range c.Items {
		if candidate.ID == id {
			return candidate
		}
	}
	return nil
}

func (c *Candidate) GetStringField(name string) string {
	switch name {
	case CandidateIDField:
		return c.ID
	case CandidateStatusField:
		return c.Status
	case CandidateStageField:
		return c.Stage
	default:
		return ""
	}
}

// Keep retains candidates whose field (compared case-insensitively) is one of values
// and returns the ids of the dropped ones.
func (c *Candidates) Keep(name string, values []string) []string {
	allowed := lowerSet(values)
	return c.retain(func(candidate *Candidate) bool {
		return allowed[strings.ToLower(strings.TrimSpace(candidate.GetStringField(name)))]
	})
}

// Exclude drops candidates whose field (compared case-insensitively) is one of values
// and returns their ids.
func (c *Candidates) Exclude(name string, values []string) []string {
	denied := lowerSet(values)
	return c.retain(func(candidate *Candidate) bool {
		return !denied[strings.ToLower(strings.TrimSpace(candidate.GetStringField(name)))]
	})
}

func (c *Candidates) retain(keep func(*Candidate) bool) []string {
	var dropped []string
	kept := c.Items[:0]
	for _, candidate := range c.Items {
		if keep(candidate) {
			kept = append(kept, candidate)
			continue
		}
		dropped = append(dropped, candidate.ID)
	}
	for i := len(kept); i < len(c.Items); i++ {
		c.Items[i] = nil
	}
	c.Items = kept
	return dropped
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(strings.TrimSpace(v))] = true
	}
	return set
}
