package application

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-ragqa/internal/domain"
)

// ErrEmptyQuerySet is returned when a query file holds no queries.
var ErrEmptyQuerySet = errors.New("query set is empty")

// QuerySet is the on-disk format of labelled questions:
//
//	{"queries": [{"question": "...", "answer": "..."}]}
type QuerySet struct {
	Queries []domain.QueryCase `json:"queries" yaml:"queries"`
}

// LoadQuerySet reads a query set. Files ending in .yaml or .yml are parsed
// as YAML, everything else as JSON. Entries with a blank question are
// rejected.
func LoadQuerySet(path string) ([]domain.QueryCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading query set: %w", err)
	}

	var set QuerySet
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &set)
	default:
		err = json.Unmarshal(data, &set)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing query set %s: %w", path, err)
	}

	if len(set.Queries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyQuerySet, path)
	}

	verr := domain.NewValidationError("query set")
	for i, q := range set.Queries {
		if strings.TrimSpace(q.Question) == "" {
			verr.AddError(fmt.Sprintf("queries[%d]: question is empty", i))
		}
	}
	if verr.HasErrors() {
		return nil, verr
	}
	return set.Queries, nil
}
