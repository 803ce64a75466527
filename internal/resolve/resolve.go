// Package resolve turns capability identifiers into loaded, invocable
// handles, caching resolutions so the backing source is not re-scanned
// on every invocation. Cached entries are invalidated by TTL and by
// source signature changes, whichever trips first.
package resolve

import (
	"log/slog"
	"sort"

	"github.com/arclight-ai/capd/internal/registry"
)

// Key is the composite cache key: capability identifier plus the
// normalized profile the request is scoped to.
type Key struct {
	Name    string
	Profile string
}

// pickTool applies the deterministic precedence rule to a candidate
// set: profile-scoped definitions beat default-scoped ones, and ties
// within a scope break by lexical source path. Iteration order of the
// source never decides the winner.
func pickTool(defs []registry.Definition, profile string) (registry.Definition, bool) {
	scoped := splitByProfile(defs, profile)
	for _, candidates := range scoped {
		if len(candidates) == 0 {
			continue
		}
		sortBySource(candidates)
		if len(candidates) > 1 {
			slog.Warn("ambiguous capability definition, using lexically first source",
				"name", candidates[0].Name,
				"profile", candidates[0].Profile,
				"chosen", candidates[0].Source,
				"candidates", len(candidates))
		}
		return candidates[0], true
	}
	return registry.Definition{}, false
}

// orderExtensions returns the hook chain for an extension point.
// A profile that declares any extensions for the point overrides the
// default set entirely; within the winning scope, Order then lexical
// source path fix the sequence.
func orderExtensions(defs []registry.Definition, profile string) []registry.Definition {
	scoped := splitByProfile(defs, profile)
	for _, candidates := range scoped {
		if len(candidates) == 0 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			if candidates[i].Order != candidates[j].Order {
				return candidates[i].Order < candidates[j].Order
			}
			return candidates[i].Source < candidates[j].Source
		})
		return candidates
	}
	return nil
}

// splitByProfile partitions defs into precedence tiers: the requested
// profile first, then default. For the default profile both tiers
// collapse into one.
func splitByProfile(defs []registry.Definition, profile string) [][]registry.Definition {
	if profile == registry.DefaultProfile {
		out := make([]registry.Definition, 0, len(defs))
		out = append(out, defs...)
		return [][]registry.Definition{out}
	}
	var scoped, dflt []registry.Definition
	for _, d := range defs {
		if d.Profile == profile {
			scoped = append(scoped, d)
		} else {
			dflt = append(dflt, d)
		}
	}
	return [][]registry.Definition{scoped, dflt}
}

func sortBySource(defs []registry.Definition) {
	sort.Slice(defs, func(i, j int) bool { return defs[i].Source < defs[j].Source })
}
