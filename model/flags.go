package model

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// params for Flags
type CommandLineFlags struct {
	Config      *string   `json:"config"`
	Op          *string   `json:"op"`
	Query       *string   `json:"query"`
	Datastreams *string   `json:"datastreams"`
	TCM         *string   `json:"tcm"`
	TCMTable    *string   `json:"tcm_table"`
	Columns     *string   `json:"columns"`
	Cuts        LevelCuts `json:"cuts"`
	Orientation *string   `json:"orientation"`
	AggFunc     *string   `json:"agg_func"`
	Format      *string   `json:"format"`
	Out         *string   `json:"out"`
	Export      *string   `json:"export"`
}

// LevelCuts collects repeated -cut level=expr flags.
type LevelCuts map[string]string

func (c LevelCuts) String() string {
	var parts []string
	for _, level := range slices.Sorted(maps.Keys(c)) {
		parts = append(parts, level+"="+c[level])
	}
	return strings.Join(parts, ";")
}

func (c LevelCuts) Set(s string) error {
	level, cut, ok := strings.Cut(s, "=")
	level = strings.TrimSpace(level)
	if !ok || level == "" || strings.TrimSpace(cut) == "" {
		return fmt.Errorf("cut %q is not level=expression", s)
	}
	if prev, ok := c[level]; ok {
		cut = "(" + prev + ") and (" + cut + ")"
	}
	c[level] = cut
	return nil
}

// SplitList splits a comma separated flag value, dropping empty items.
func SplitList(s string) []string {
	var res []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			res = append(res, item)
		}
	}
	return res
}
