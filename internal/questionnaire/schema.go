package questionnaire

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/qri-io/jsonschema"

	"github.com/oppboard/oppboard/internal/engage"
	"github.com/oppboard/oppboard/pkg/models"
)

//go:embed schema.json
var questionSetSchema []byte

// compileSchema compiles the embedded question-set schema. Called once from
// NewService.
func compileSchema() (*jsonschema.Schema, error) {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(questionSetSchema, rs); err != nil {
		return nil, fmt.Errorf("compile question set schema: %w", err)
	}
	return rs, nil
}

// validateQuestions checks the whole question set and returns every violation
// found, not just the first. Structural checks run through the compiled JSON
// schema; the cross-field rules (multiple choice option counts) are applied
// on top.
func (s *Service) validateQuestions(ctx context.Context, questions []models.Question) error {
	var violations []string

	b, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	keyErrs, err := s.schema.ValidateBytes(ctx, b)
	if err != nil {
		return fmt.Errorf("validate questions: %w", err)
	}
	for _, ke := range keyErrs {
		violations = append(violations, fmt.Sprintf("questions%s: %s", ke.PropertyPath, ke.Message))
	}

	for i, q := range questions {
		if strings.TrimSpace(q.Text) == "" {
			violations = append(violations, fmt.Sprintf("questions/%d: text must not be blank", i))
		}
		if q.Type == models.QuestionMultipleChoice {
			nonEmpty := 0
			for _, opt := range q.Options {
				if strings.TrimSpace(opt) != "" {
					nonEmpty++
				}
			}
			if nonEmpty < 2 {
				violations = append(violations, fmt.Sprintf("questions/%d: multiple_choice requires at least two non-empty options", i))
			}
		}
	}

	if len(violations) > 0 {
		return &engage.ValidationError{Violations: violations}
	}
	return nil
}
