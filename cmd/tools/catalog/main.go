// cmd/tools/catalog/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"task-recipes/internal/orchestrator"
	"task-recipes/internal/workers"
	"task-recipes/pkg/registry"
)

const defaultPath = "configs/task-catalog.json"

func main() {
	syncCmd := flag.NewFlagSet("sync", flag.ExitOnError)
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	listCmd := flag.NewFlagSet("list", flag.ExitOnError)

	syncPath := syncCmd.String("path", defaultPath, "Path to catalog file")
	syncStatus := syncCmd.String("status", "completed", "Implementation status for new entries")

	updatePath := updateCmd.String("path", defaultPath, "Path to catalog file")
	key := updateCmd.String("key", "", "Task key to update (e.g., chaos.ping)")
	field := updateCmd.String("field", "", "Field to update (status, version, retries, retryDelay, timeout, cacheExpiration, description)")
	value := updateCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", defaultPath, "Path to catalog file")
	listPath := listCmd.String("path", defaultPath, "Path to catalog file")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "sync":
		_ = syncCmd.Parse(os.Args[2:])
		added, err := syncCatalog(*syncPath, *syncStatus)
		if err != nil {
			fail("Error syncing catalog: %v", err)
		}
		fmt.Printf("Catalog synced, %d new entries\n", added)

	case "update":
		_ = updateCmd.Parse(os.Args[2:])
		if *key == "" || *field == "" || *value == "" {
			fmt.Println("Error: key, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		if err := updateEntry(*updatePath, *key, *field, *value); err != nil {
			fail("Error updating task: %v", err)
		}
		fmt.Printf("Updated task %s, field %s to %s\n", *key, *field, *value)

	case "validate":
		_ = validateCmd.Parse(os.Args[2:])
		cat, err := registry.LoadCatalog(*validatePath)
		if err != nil {
			fail("Failed to load catalog: %v", err)
		}
		if errs := validateCatalog(cat); len(errs) > 0 {
			for _, e := range errs {
				fmt.Println(" -", e)
			}
			fail("Catalog validation failed with %d errors", len(errs))
		}
		fmt.Printf("Catalog validation passed. Found %d tasks.\n", len(cat.Tasks))

	case "list":
		_ = listCmd.Parse(os.Args[2:])
		cat, err := registry.LoadCatalog(*listPath)
		if err != nil {
			fail("Failed to load catalog: %v", err)
		}
		for _, e := range cat.Tasks {
			fmt.Printf("%-40s %-12s %s\n", e.Key, e.ImplementationStatus, e.DisplayName)
		}

	default:
		help()
	}
}

func fail(format string, args ...interface{}) {
	fmt.Printf(format+"\n", args...)
	os.Exit(1)
}

// entryFor describes a compiled-in task definition.
func entryFor(t *orchestrator.Task, status string) registry.TaskEntry {
	recipe, name, _ := strings.Cut(t.Key, ".")
	retries := t.Retries
	e := registry.TaskEntry{
		Key:                  t.Key,
		DisplayName:          displayName(name),
		Description:          t.Description,
		Recipe:               recipe,
		Version:              "1.0.0",
		ImplementationStatus: status,
		Retries:              &retries,
		Tags:                 []string{recipe},
	}
	if t.RetryDelay > 0 {
		e.RetryDelay = t.RetryDelay.String()
	}
	if t.Timeout > 0 {
		e.Timeout = t.Timeout.String()
	}
	if t.CacheExpiration > 0 {
		e.CacheExpiration = t.CacheExpiration.String()
	}
	return e
}

func displayName(name string) string {
	words := strings.Split(name, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// syncCatalog adds an entry for every compiled-in task missing from the
// catalog. Existing entries keep their overrides.
func syncCatalog(path, status string) (int, error) {
	cat, err := registry.LoadCatalog(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return 0, fmt.Errorf("failed to load catalog: %w", err)
		}
		cat = &registry.TaskCatalog{Version: "1.0.0"}
	}

	added := 0
	for _, t := range workers.Definitions() {
		if _, ok := cat.Find(t.Key); ok {
			continue
		}
		cat.Upsert(entryFor(t, status))
		added++
	}
	return added, save(cat, path)
}

func updateEntry(path, key, field, value string) error {
	cat, err := registry.LoadCatalog(path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	e, ok := cat.Find(key)
	if !ok {
		return fmt.Errorf("task %s not found", key)
	}

	switch field {
	case "status":
		e.ImplementationStatus = value
	case "version":
		e.Version = value
	case "description":
		e.Description = value
	case "timeout":
		e.Timeout = value
	case "retryDelay":
		e.RetryDelay = value
	case "cacheExpiration":
		e.CacheExpiration = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		e.Retries = &retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}

	if errs := cat.Validate(); len(errs) > 0 {
		return errs[0]
	}
	return save(cat, path)
}

// validateCatalog also flags entries no compiled-in task answers to.
func validateCatalog(cat *registry.TaskCatalog) []error {
	errs := cat.Validate()
	known := make(map[string]bool)
	for _, t := range workers.Definitions() {
		known[t.Key] = true
	}
	for _, e := range cat.Tasks {
		if e.Key != "" && !known[e.Key] {
			errs = append(errs, fmt.Errorf("%s: no such task", e.Key))
		}
	}
	return errs
}

func save(cat *registry.TaskCatalog, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return cat.Save(path)
}

func help() {
	fmt.Println(`
Usage: catalog <command> [flags]

Commands:
  sync      Add entries for compiled-in tasks missing from the catalog
  update    Update one field of a task entry
  validate  Validate the catalog file
  list      List catalog entries

Examples:
  catalog sync -path configs/task-catalog.json
  catalog update -key chaos.ping -field retries -value 3
  catalog validate -path configs/task-catalog.json

Use 'catalog <command> -h' for more information about a command.
`)
}
