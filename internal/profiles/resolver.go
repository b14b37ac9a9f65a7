package profiles

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/flowdeck/flowdeck/internal/catalog"
	"github.com/flowdeck/flowdeck/internal/store"
	"github.com/flowdeck/flowdeck/pkg/schema"
)

const envFilePrefix = ".env."

// Catalog is the subset of the catalog index the resolver needs: declared
// parameter names and the definition directory per tool.
type Catalog interface {
	Tool(name string) (*catalog.ToolEntry, bool)
}

// Resolver merges tool configuration from layered sources into named
// profiles. File and environment tiers merge per key in ascending priority
// (env_file < env_central < env_runtime); database profiles are listed
// separately so callers know which tier to write back to.
type Resolver struct {
	store      store.Store
	catalog    Catalog
	centralEnv string
	logger     *slog.Logger
}

// NewResolver creates a Resolver. centralEnv is the path of the centralized
// env file (missing file is not an error, the tier is just empty).
func NewResolver(st store.Store, cat Catalog, centralEnv string, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:      st,
		catalog:    cat,
		centralEnv: centralEnv,
		logger:     logger,
	}
}

// Resolve returns all profiles for a tool: the merged file/env tiers first,
// then database-stored profiles, each annotated with its source.
func (r *Resolver) Resolve(ctx context.Context, toolName string) ([]Profile, error) {
	entry, ok := r.catalog.Tool(toolName)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "tool %q not in catalog", toolName)
	}
	params := entry.Manifest.ParamNames()

	sources := []profileSource{
		{source: SourceEnvFile, profiles: r.fileProfiles(ctx, entry)},
		{source: SourceEnvCentral, profiles: r.centralProfiles(ctx, toolName, params)},
		{source: SourceEnvRuntime, profiles: r.runtimeProfiles(toolName, params)},
	}
	profiles := mergeSources(sources)

	dbProfiles, err := r.databaseProfiles(ctx, toolName)
	if err != nil {
		return nil, err
	}
	return append(profiles, dbProfiles...), nil
}

// fileProfiles reads every <dir>/.env.<PROFILE> file. Keys are lower-cased.
func (r *Resolver) fileProfiles(ctx context.Context, entry *catalog.ToolEntry) map[string]map[string]string {
	profiles := make(map[string]map[string]string)

	dirEntries, err := os.ReadDir(entry.Dir)
	if err != nil {
		r.logger.WarnContext(ctx, "tool directory unreadable", "tool", entry.Name, "error", err)
		return profiles
	}

	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasPrefix(de.Name(), envFilePrefix) {
			continue
		}
		profileName := strings.TrimPrefix(de.Name(), envFilePrefix)
		if profileName == "" {
			continue
		}
		values, err := godotenv.Read(filepath.Join(entry.Dir, de.Name()))
		if err != nil {
			r.logger.WarnContext(ctx, "profile file unreadable, skipping",
				"tool", entry.Name, "profile", profileName, "error", err)
			continue
		}
		config := make(map[string]string, len(values))
		for k, v := range values {
			config[strings.ToLower(k)] = v
		}
		profiles[profileName] = config
	}
	return profiles
}

// centralProfiles extracts <TOOL>_<PROFILE>_<PARAM> keys from the central
// env file.
func (r *Resolver) centralProfiles(ctx context.Context, toolName string, params []string) map[string]map[string]string {
	if len(params) == 0 || r.centralEnv == "" {
		return nil
	}
	values, err := godotenv.Read(r.centralEnv)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.WarnContext(ctx, "central env file unreadable", "path", r.centralEnv, "error", err)
		}
		return nil
	}
	return matchEnvKeys(values, toolName, params)
}

// runtimeProfiles extracts the same convention from the process environment.
func (r *Resolver) runtimeProfiles(toolName string, params []string) map[string]map[string]string {
	if len(params) == 0 {
		return nil
	}
	values := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			values[k] = v
		}
	}
	return matchEnvKeys(values, toolName, params)
}

// matchEnvKeys attributes keys of the form <TOOL>_<PROFILE>_<PARAM> to
// profiles. Tool and param match case-insensitively; the profile segment is
// preserved as written. Matching is constrained to the declared parameter
// set; the longest declared param wins when suffixes overlap.
func matchEnvKeys(values map[string]string, toolName string, params []string) map[string]map[string]string {
	byLength := make([]string, len(params))
	copy(byLength, params)
	sort.Slice(byLength, func(i, j int) bool { return len(byLength[i]) > len(byLength[j]) })

	prefix := strings.ToUpper(toolName) + "_"
	profiles := make(map[string]map[string]string)

	for key, value := range values {
		upper := strings.ToUpper(key)
		if !strings.HasPrefix(upper, prefix) {
			continue
		}
		remainder := key[len(prefix):]

		for _, param := range byLength {
			suffix := "_" + strings.ToUpper(param)
			upperRemainder := strings.ToUpper(remainder)
			if !strings.HasSuffix(upperRemainder, suffix) || len(remainder) <= len(suffix) {
				continue
			}
			profileName := remainder[:len(remainder)-len(suffix)]
			config, ok := profiles[profileName]
			if !ok {
				config = make(map[string]string)
				profiles[profileName] = config
			}
			config[strings.ToLower(param)] = value
			break
		}
	}
	return profiles
}

// databaseProfiles lists the ToolProfile rows for a tool, tagged
// source=database. A tool with no store row simply has no database tier.
func (r *Resolver) databaseProfiles(ctx context.Context, toolName string) ([]Profile, error) {
	tool, err := r.store.GetToolByName(ctx, toolName)
	if err != nil {
		if schema.IsCode(err, schema.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.store.ListToolProfiles(ctx, tool.ID)
	if err != nil {
		return nil, err
	}

	profiles := make([]Profile, 0, len(rows))
	for _, row := range rows {
		profiles = append(profiles, Profile{
			Name:      row.ProfileName,
			Config:    row.Config,
			Source:    SourceDatabase,
			ID:        row.ID,
			IsDefault: row.IsDefault,
		})
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

// Get returns one named profile: the merged file/env profile when present,
// else the database profile of that name.
func (r *Resolver) Get(ctx context.Context, toolName, profileName string) (*Profile, error) {
	all, err := r.Resolve(ctx, toolName)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].Name == profileName {
			return &all[i], nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "profile %q not found for tool %q", profileName, toolName)
}

// Save creates or replaces a profile. The file tier is the default; pass
// toDatabase to store a ToolProfile row instead.
func (r *Resolver) Save(ctx context.Context, toolName, profileName string, config map[string]string, toDatabase bool) error {
	if !toDatabase {
		return r.saveFileProfile(toolName, profileName, config)
	}

	tool, err := r.store.GetToolByName(ctx, toolName)
	if err != nil {
		return err
	}
	existing, err := r.store.ListToolProfiles(ctx, tool.ID)
	if err != nil {
		return err
	}
	for _, row := range existing {
		if row.ProfileName == profileName {
			return r.store.UpdateToolProfile(ctx, row.ID, store.ToolProfileUpdate{Config: &config})
		}
	}
	return r.store.CreateToolProfile(ctx, &store.ToolProfile{
		ToolID:      tool.ID,
		ProfileName: profileName,
		Config:      config,
		Active:      true,
	})
}

// saveFileProfile writes <dir>/.env.<PROFILE> with upper-cased KEY=value
// lines, sorted for stable output.
func (r *Resolver) saveFileProfile(toolName, profileName string, config map[string]string) error {
	entry, ok := r.catalog.Tool(toolName)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "tool %q not in catalog", toolName)
	}

	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", strings.ToUpper(k), config[k])
	}

	path := filepath.Join(entry.Dir, envFilePrefix+profileName)
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "write profile file %s", path).WithCause(err)
	}
	return nil
}

// Update rewrites an existing profile, routing to the tier that holds it.
// The file tier is checked first.
func (r *Resolver) Update(ctx context.Context, toolName, profileName string, config map[string]string) error {
	if r.fileProfileExists(toolName, profileName) {
		return r.saveFileProfile(toolName, profileName, config)
	}

	row, err := r.databaseProfile(ctx, toolName, profileName)
	if err != nil {
		return err
	}
	return r.store.UpdateToolProfile(ctx, row.ID, store.ToolProfileUpdate{Config: &config})
}

// Delete removes a profile, routing to the tier that holds it.
func (r *Resolver) Delete(ctx context.Context, toolName, profileName string) error {
	if r.fileProfileExists(toolName, profileName) {
		entry, _ := r.catalog.Tool(toolName)
		path := filepath.Join(entry.Dir, envFilePrefix+profileName)
		if err := os.Remove(path); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "remove profile file %s", path).WithCause(err)
		}
		return nil
	}

	row, err := r.databaseProfile(ctx, toolName, profileName)
	if err != nil {
		return err
	}
	return r.store.DeleteToolProfile(ctx, row.ID)
}

func (r *Resolver) fileProfileExists(toolName, profileName string) bool {
	entry, ok := r.catalog.Tool(toolName)
	if !ok {
		return false
	}
	info, err := os.Stat(filepath.Join(entry.Dir, envFilePrefix+profileName))
	return err == nil && !info.IsDir()
}

func (r *Resolver) databaseProfile(ctx context.Context, toolName, profileName string) (*store.ToolProfile, error) {
	tool, err := r.store.GetToolByName(ctx, toolName)
	if err != nil {
		return nil, err
	}
	rows, err := r.store.ListToolProfiles(ctx, tool.ID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.ProfileName == profileName {
			return row, nil
		}
	}
	return nil, schema.NewErrorf(schema.ErrCodeNotFound, "profile %q not found for tool %q", profileName, toolName)
}
