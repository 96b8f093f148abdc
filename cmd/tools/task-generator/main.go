// cmd/tools/task-generator/main.go
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"task-recipes/pkg/registry"
)

// TaskData feeds the templates.
type TaskData struct {
	Key         string
	Name        string
	PackageName string
	Description string
	Retries     int
	InputFields string
}

// parseSchema extracts properties from a JSON schema object
func parseSchema(schema map[string]interface{}) map[string]interface{} {
	if props, ok := schema["properties"].(map[string]interface{}); ok {
		return props
	}
	return map[string]interface{}{}
}

// goTypeFromJSONType maps JSON schema types to Go types
func goTypeFromJSONType(jsonType interface{}) string {
	switch jsonType {
	case "string":
		return "string"
	case "integer":
		return "int"
	case "number":
		return "float64"
	case "boolean":
		return "bool"
	case "object":
		return "map[string]interface{}"
	case "array":
		return "[]interface{}"
	}
	return "interface{}"
}

// generateStructFields renders one struct field per schema property, sorted
// by name.
func generateStructFields(properties map[string]interface{}) string {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)

	var fields []string
	for _, prop := range names {
		details, ok := properties[prop].(map[string]interface{})
		if !ok {
			continue
		}
		comment := ""
		if d, ok := details["description"].(string); ok && d != "" {
			comment = " // " + d
		}
		fields = append(fields, fmt.Sprintf("\t%s %s `json:\"%s\"`%s",
			goName(prop), goTypeFromJSONType(details["type"]), prop, comment))
	}
	return strings.Join(fields, "\n")
}

// goName turns snake_case into an exported identifier.
func goName(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "")
}

const handlerTemplate = `package {{ .PackageName }}

import (
	"context"

	"task-recipes/internal/common/logger"
	"task-recipes/internal/orchestrator"
)

const TaskKey = "{{ .Key }}"

type Input struct {
{{ .InputFields }}
}

// Definition is the submit-side description of the task.
func Definition() *orchestrator.Task {
	return &orchestrator.Task{
		Key:         TaskKey,
		Description: "{{ .Description }}",
		Retries:     {{ .Retries }},
	}
}

type Handler struct {
	logger logger.Logger
}

func NewHandler(log logger.Logger) *Handler {
	return &Handler{logger: log.WithFields(map[string]interface{}{"taskKey": TaskKey})}
}

func (h *Handler) Task() *orchestrator.Task {
	return Definition().WithHandler(orchestrator.Typed(h.Execute))
}

func (h *Handler) Execute(ctx context.Context, input *Input) (any, error) {
	h.logger.Info("Running {{ .Name }}", nil)
	return nil, nil
}
`

const testTemplate = `package {{ .PackageName }}

import (
	"context"
	"testing"

	"task-recipes/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandler_Execute(t *testing.T) {
	h := NewHandler(logger.NewTestLogger(t))
	_, err := h.Execute(context.Background(), &Input{})
	require.NoError(t, err)
}

func TestDefinition(t *testing.T) {
	assert.Equal(t, TaskKey, Definition().Key)
	assert.NotNil(t, NewHandler(logger.NewNoOpLogger()).Task().Handler)
}
`

// taskDir maps recipe.task_name to <out>/<recipe>/<task-name>.
func taskDir(out, key string) (string, string, error) {
	recipe, name, ok := strings.Cut(key, ".")
	if !ok || recipe == "" || name == "" {
		return "", "", fmt.Errorf("task key %q is not <recipe>.<name>", key)
	}
	pkg := strings.ReplaceAll(name, "_", "")
	return filepath.Join(out, recipe, strings.ReplaceAll(name, "_", "-")), pkg, nil
}

func render(name, tmpl string, data TaskData) ([]byte, error) {
	t, err := template.New(name).Parse(tmpl)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return nil, err
	}
	return format.Source(buf.Bytes())
}

// generate writes handler.go and handler_test.go for entry under out. It
// refuses to overwrite an existing handler.
func generate(entry registry.TaskEntry, out string) (string, error) {
	dir, pkg, err := taskDir(out, entry.Key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(filepath.Join(dir, "handler.go")); err == nil {
		return "", fmt.Errorf("%s already has a handler", dir)
	}

	data := TaskData{
		Key:         entry.Key,
		Name:        entry.DisplayName,
		PackageName: pkg,
		Description: entry.Description,
		InputFields: generateStructFields(parseSchema(entry.InputSchema)),
	}
	if entry.Retries != nil {
		data.Retries = *entry.Retries
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	for file, tmpl := range map[string]string{"handler.go": handlerTemplate, "handler_test.go": testTemplate} {
		src, err := render(file, tmpl, data)
		if err != nil {
			return "", fmt.Errorf("render %s: %w", file, err)
		}
		if err := os.WriteFile(filepath.Join(dir, file), src, 0o644); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func main() {
	key := flag.String("key", "", "Task key from the catalog (e.g., signups.populate_workspace)")
	outputDir := flag.String("output", "./internal/workers/", "Output directory for the generated task")
	catalogPath := flag.String("catalog", "configs/task-catalog.json", "Path to the task catalog JSON file")
	flag.Parse()

	if *key == "" {
		fmt.Println("Error: -key is required")
		flag.Usage()
		os.Exit(1)
	}

	cat, err := registry.LoadCatalog(*catalogPath)
	if err != nil {
		fmt.Printf("Error loading catalog: %v\n", err)
		os.Exit(1)
	}
	entry, ok := cat.Find(*key)
	if !ok {
		fmt.Printf("Error: task %s not found in %s\n", *key, *catalogPath)
		os.Exit(1)
	}

	dir, err := generate(*entry, *outputDir)
	if err != nil {
		fmt.Printf("Error generating task: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Generated %s in %s\n", *key, dir)
	fmt.Println("Register its Definition in internal/workers/catalog.go to make it submittable.")
}
