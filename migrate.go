package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/binsquare/keyscrub/scrub"
	"github.com/binsquare/keyscrub/secretstore"
	"go.uber.org/zap"
)

// MigrationStep moves one secret literal into a backend.
type MigrationStep struct {
	Env    string
	Name   string
	Secret string
}

// PlanMigration lists the backend writes needed for rf. Every rule must name
// the environment variable its placeholder reads.
func PlanMigration(rf RulesFile) ([]MigrationStep, error) {
	steps := make([]MigrationStep, 0, len(rf.Rules))
	seen := make(map[string]bool, len(rf.Rules))
	for i, r := range rf.Rules {
		if r.Env == "" {
			return nil, fmt.Errorf("%s has no env name; set env: on the rule", r.Label(i))
		}
		if seen[r.Env] {
			return nil, fmt.Errorf("env %s is used by more than one rule", r.Env)
		}
		seen[r.Env] = true
		steps = append(steps, MigrationStep{
			Env:    r.Env,
			Name:   rf.Destination.QualifiedName(r.Env),
			Secret: r.Secret,
		})
	}
	return steps, nil
}

// OpenDestination builds the Store named by backendName.
func OpenDestination(globalCfg GlobalConfig, backendName string) (secretstore.Store, error) {
	cfg, err := globalCfg.Backend(backendName)
	if err != nil {
		return nil, err
	}
	return secretstore.Open(cfg)
}

// Migrate writes every step to store, printing one line per step. With
// verify it reads each value back and fails on the first mismatch.
func Migrate(ctx context.Context, store secretstore.Store, steps []MigrationStep, verify bool, out io.Writer, logger *zap.Logger) error {
	for _, step := range steps {
		if err := store.Put(ctx, step.Name, step.Secret); err != nil {
			return fmt.Errorf("migrate %s: %w", step.Env, err)
		}
		logger.Debug("stored secret", zap.String("env", step.Env), zap.String("name", step.Name))
		if verify {
			got, err := store.Get(ctx, step.Name)
			if err != nil {
				return fmt.Errorf("verify %s: %w", step.Env, err)
			}
			if got != step.Secret {
				return fmt.Errorf("verify %s: backend returned %s, want %s", step.Env, MaskValue(got), MaskValue(step.Secret))
			}
		}
		fmt.Fprintf(out, "%s -> %s (%s)\n", step.Env, step.Name, MaskValue(step.Secret))
	}
	return nil
}

// MissingSecrets returns the steps whose secret is not yet in store.
func MissingSecrets(ctx context.Context, store secretstore.Store, steps []MigrationStep) ([]MigrationStep, error) {
	var missing []MigrationStep
	for _, step := range steps {
		_, err := store.Get(ctx, step.Name)
		if errors.Is(err, secretstore.ErrNotFound) {
			missing = append(missing, step)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("look up %s: %w", step.Env, err)
		}
	}
	return missing, nil
}

// rulesLabel formats rule i for display with its secret masked.
func rulesLabel(r scrub.Rule, i int) string {
	return fmt.Sprintf("%s (%s)", r.Label(i), MaskValue(r.Secret))
}
