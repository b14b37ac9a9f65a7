package profiles

import "sort"

// Profile is a named configuration bundle for a tool, annotated with the
// persistence tier it came from.
type Profile struct {
	Name      string
	Config    map[string]string
	Source    string
	ID        string
	IsDefault bool
}

// Source labels, in ascending file/env priority. Database profiles are a
// separate tier and never merge with the others.
const (
	SourceEnvFile    = "env_file"
	SourceEnvCentral = "env_central"
	SourceEnvRuntime = "env_runtime"
	SourceDatabase   = "database"
)

// profileSource is one ordered key-value source feeding the merge: a tier
// label plus the profiles it contributes.
type profileSource struct {
	source   string
	profiles map[string]map[string]string
}

// mergeSources folds an ascending-priority list of sources into one profile
// list. Later sources override earlier ones per key within a profile; the
// source label on each result is the highest-priority tier that contributed
// at least one key. The result is sorted by profile name.
func mergeSources(sources []profileSource) []Profile {
	merged := make(map[string]*Profile)

	for _, src := range sources {
		for name, config := range src.profiles {
			if len(config) == 0 {
				continue
			}
			p, ok := merged[name]
			if !ok {
				p = &Profile{Name: name, Config: make(map[string]string)}
				merged[name] = p
			}
			for k, v := range config {
				p.Config[k] = v
			}
			p.Source = src.source
		}
	}

	result := make([]Profile, 0, len(merged))
	for _, p := range merged {
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}
