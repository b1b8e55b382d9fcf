package engine

import (
	"fmt"

	"github.com/miradorstack/mirador-noc/internal/config"
	"github.com/miradorstack/mirador-noc/internal/models"
)

// ChannelPolicy assigns channels to escalation tiers.
type ChannelPolicy struct {
	Base       models.Channel
	Escalation []models.Channel
	Critical   models.Channel
}

// DefaultChannelPolicy notifies Teams always, Slack and PagerDuty from high
// severity and email for critical incidents.
func DefaultChannelPolicy() ChannelPolicy {
	return ChannelPolicy{
		Base:       models.ChannelTeams,
		Escalation: []models.Channel{models.ChannelSlack, models.ChannelPagerDuty},
		Critical:   models.ChannelEmail,
	}
}

// NewChannelPolicy parses configured channel names.
func NewChannelPolicy(cfg config.ChannelsConfig) (ChannelPolicy, error) {
	policy := DefaultChannelPolicy()
	if cfg.Base != "" {
		c, ok := models.ParseChannel(cfg.Base)
		if !ok {
			return ChannelPolicy{}, fmt.Errorf("unknown base channel %q", cfg.Base)
		}
		policy.Base = c
	}
	if cfg.Escalation != nil {
		policy.Escalation = make([]models.Channel, 0, len(cfg.Escalation))
		for _, name := range cfg.Escalation {
			c, ok := models.ParseChannel(name)
			if !ok {
				return ChannelPolicy{}, fmt.Errorf("unknown escalation channel %q", name)
			}
			policy.Escalation = append(policy.Escalation, c)
		}
	}
	if cfg.Critical != "" {
		c, ok := models.ParseChannel(cfg.Critical)
		if !ok {
			return ChannelPolicy{}, fmt.Errorf("unknown critical channel %q", cfg.Critical)
		}
		policy.Critical = c
	}
	return policy, nil
}

// Select returns the cumulative channel list for severity without duplicates.
func (p ChannelPolicy) Select(severity models.Severity) []models.Channel {
	channels := make([]models.Channel, 0, 2+len(p.Escalation))
	seen := make(map[models.Channel]struct{}, cap(channels))
	add := func(c models.Channel) {
		if c == "" {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		channels = append(channels, c)
	}

	add(p.Base)
	switch severity {
	case models.SeverityHigh:
		for _, c := range p.Escalation {
			add(c)
		}
	case models.SeverityCritical:
		for _, c := range p.Escalation {
			add(c)
		}
		add(p.Critical)
	}
	return channels
}

// SelectChannels applies the default policy.
func SelectChannels(severity models.Severity) []models.Channel {
	return DefaultChannelPolicy().Select(severity)
}
