package engine

import (
	"fmt"
	"strings"

	"github.com/miradorstack/mirador-noc/internal/config"
	"github.com/miradorstack/mirador-noc/internal/models"
)

// RelationStrategy decides whether two alarms from different namespaces
// describe the same incident. Alarms sharing a namespace are always related
// by the correlator; a strategy only widens grouping across namespaces.
type RelationStrategy interface {
	Related(prev, cur models.Alarm) bool
}

// NoRelation never relates alarms across namespaces.
type NoRelation struct{}

// Related always returns false.
func (NoRelation) Related(models.Alarm, models.Alarm) bool { return false }

// NamespaceRelation relates namespaces that belong to the same configured group,
// e.g. AWS/ApplicationELB and AWS/EC2 under "web".
type NamespaceRelation struct {
	groupOf map[string]string
}

// NewNamespaceRelation indexes group name by namespace.
func NewNamespaceRelation(groups map[string][]string) NamespaceRelation {
	idx := make(map[string]string)
	for group, namespaces := range groups {
		for _, ns := range namespaces {
			idx[strings.ToLower(strings.TrimSpace(ns))] = group
		}
	}
	return NamespaceRelation{groupOf: idx}
}

// Related reports whether both namespaces map to the same group.
func (r NamespaceRelation) Related(prev, cur models.Alarm) bool {
	a, ok := r.groupOf[strings.ToLower(prev.Namespace)]
	if !ok {
		return false
	}
	b, ok := r.groupOf[strings.ToLower(cur.Namespace)]
	return ok && a == b
}

// TagRelation relates alarms that carry the same value for any configured dimension key.
type TagRelation struct {
	Keys []string
}

// Related compares the configured dimensions of both alarms.
func (r TagRelation) Related(prev, cur models.Alarm) bool {
	for _, key := range r.Keys {
		a, ok := prev.Dimensions[key]
		if !ok || a == "" {
			continue
		}
		if b, ok := cur.Dimensions[key]; ok && strings.EqualFold(a, b) {
			return true
		}
	}
	return false
}

// TopologyRelation relates alarms whose resources are linked by a dependency edge.
// Resources are identified by dimension values; edges are undirected.
type TopologyRelation struct {
	neighbours map[string]map[string]struct{}
}

// NewTopologyRelation builds an adjacency index from configured edges.
func NewTopologyRelation(edges []config.TopologyEdge) TopologyRelation {
	adj := make(map[string]map[string]struct{})
	link := func(a, b string) {
		if adj[a] == nil {
			adj[a] = make(map[string]struct{})
		}
		adj[a][b] = struct{}{}
	}
	for _, edge := range edges {
		src := strings.ToLower(strings.TrimSpace(edge.Source))
		dst := strings.ToLower(strings.TrimSpace(edge.Target))
		if src == "" || dst == "" {
			continue
		}
		link(src, dst)
		link(dst, src)
	}
	return TopologyRelation{neighbours: adj}
}

// Related reports whether any resource of prev neighbours any resource of cur.
func (r TopologyRelation) Related(prev, cur models.Alarm) bool {
	for _, a := range resourceIDs(prev) {
		linked := r.neighbours[a]
		if len(linked) == 0 {
			continue
		}
		for _, b := range resourceIDs(cur) {
			if _, ok := linked[b]; ok {
				return true
			}
		}
	}
	return false
}

func resourceIDs(alarm models.Alarm) []string {
	ids := make([]string, 0, len(alarm.Dimensions))
	for _, v := range alarm.Dimensions {
		if v != "" {
			ids = append(ids, strings.ToLower(v))
		}
	}
	return ids
}

// NewRelationStrategy selects the strategy named in cfg.
func NewRelationStrategy(cfg config.RelationConfig) (RelationStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Strategy)) {
	case "", "none":
		return NoRelation{}, nil
	case "namespace":
		return NewNamespaceRelation(cfg.NamespaceGroups), nil
	case "tags":
		return TagRelation{Keys: cfg.TagKeys}, nil
	case "topology":
		return NewTopologyRelation(cfg.Edges), nil
	default:
		return nil, fmt.Errorf("unknown relation strategy %q", cfg.Strategy)
	}
}
