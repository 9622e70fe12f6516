package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"text/template"

	"github.com/pressly/goose/v3"
)

var nameSanitizeRe = regexp.MustCompile(`[^a-z0-9]+`)

// sqlTemplate is rendered by goose. Version is the timestamp goose assigns.
var sqlTemplate = template.Must(template.New("voltride-sql").Parse(`-- +goose Up
-- version {{.Version}}
-- money is bigint VND, timestamps are timestamptz, ids are uuid
-- +goose StatementBegin
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
-- +goose StatementEnd
`))

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<name>.sql and returns its
// path. The directory is validated afterwards so a version that collides with
// an existing file is removed again instead of left for the next deploy.
func CreateSQLMigration(dir string, name string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	safe := sanitizeName(name)
	if safe == "" {
		return "", fmt.Errorf("name %q results in empty sanitized filename", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir %q: %w", dir, err)
	}

	pattern := filepath.Join(dir, "*_"+safe+".sql")
	before, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}

	goose.SetSequential(false)
	if err := goose.CreateWithTemplate(nil, dir, sqlTemplate, safe, "sql"); err != nil {
		return "", fmt.Errorf("create migration %q: %w", safe, err)
	}

	after, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	var created string
	for _, path := range after {
		if !slices.Contains(before, path) {
			created = path
		}
	}
	if created == "" {
		return "", fmt.Errorf("migration %q was not written to %s", safe, dir)
	}

	if err := ValidateDir(dir); err != nil {
		_ = os.Remove(created)
		return "", fmt.Errorf("new migration rejected: %w", err)
	}
	return created, nil
}

func sanitizeName(name string) string {
	safe := strings.ToLower(strings.TrimSpace(name))
	safe = nameSanitizeRe.ReplaceAllString(safe, "_")
	return strings.Trim(safe, "_")
}
