package config

import "slices"

// canonicalOrder is the module load order required by the node's service
// dependency graph: each entry may GetService what an earlier entry
// registered (registry needs both backend adapters provisioned first,
// resolver/proxy/tunnel/httpapi need registry, tunnel additionally needs
// the current backend's supervisor). It is not alphabetical — the teacher's
// modules have no such cross-wiring, so its Resolve could simply sort IDs;
// here the order itself is load-bearing.
var canonicalOrder = []string{
	"metrics",
	"tracing",
	"supervisor.native",
	"supervisor.openai_compat",
	"backend.native",
	"backend.openai_compat",
	"configstore",
	"registry",
	"resolver",
	"proxy",
	"tunnel",
	"httpapi",
}

// Resolve returns the module IDs present in cfg.Modules, ordered to satisfy
// the service dependency graph above. Modules configured but not part of
// the canonical graph (a third-party module added to the registry) are
// appended afterward in sorted order, so they load after every module they
// could plausibly depend on.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	seen := make(map[string]bool, len(cfg.Modules))

	for _, id := range canonicalOrder {
		if _, ok := cfg.Modules[id]; ok {
			ids = append(ids, id)
			seen[id] = true
		}
	}

	var rest []string
	for id := range cfg.Modules {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	slices.Sort(rest)

	return append(ids, rest...)
}
