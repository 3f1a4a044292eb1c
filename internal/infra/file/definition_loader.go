// Package file reads study definitions from YAML or JSON files.
package file

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"reading-study-service/internal/domain"
)

// ReadDefinition parses a definition file. YAML is a superset of JSON, so both formats load.
func ReadDefinition(path string) (domain.StudyDefinition, error) {
	var def domain.StudyDefinition
	data, err := os.ReadFile(path)
	if err != nil {
		return def, err
	}
	if err := yaml.Unmarshal(data, &def); err != nil {
		return def, fmt.Errorf("parse %s: %w", path, err)
	}
	return def, nil
}

// DefinitionLoader serves one definition file for a fixed study ID.
type DefinitionLoader struct {
	studyID string
	path    string
}

func NewDefinitionLoader(studyID, path string) *DefinitionLoader {
	return &DefinitionLoader{studyID: studyID, path: path}
}

func (l *DefinitionLoader) LoadDefinition(_ context.Context, studyID string) (domain.StudyDefinition, error) {
	if studyID != l.studyID {
		return domain.StudyDefinition{}, domain.ErrStudyNotFound
	}
	return ReadDefinition(l.path)
}
