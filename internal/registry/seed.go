package registry

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/provider-hub/internal/model"
	"github.com/sells-group/provider-hub/internal/store"
)

// SeedFile is the YAML layout for bulk-loading a provider catalog.
type SeedFile struct {
	Providers []SeedProvider `yaml:"providers"`
}

// SeedProvider declares one provider plus the operations to map it to.
type SeedProvider struct {
	Name         string        `yaml:"name"`
	Type         string        `yaml:"type"`
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	Model        string        `yaml:"model"`
	MaxTokens    int           `yaml:"max_tokens"`
	Temperature  *float64      `yaml:"temperature,omitempty"`
	Priority     *int          `yaml:"priority,omitempty"`
	Capabilities []string      `yaml:"capabilities"`
	Operations   []string      `yaml:"operations"`
	Limits       *model.Limits `yaml:"limits,omitempty"`
}

// LoadSeedFile reads and parses a seed YAML file.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read seed file %s", path)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, eris.Wrap(err, "registry: parse seed file")
	}
	return &seed, nil
}

// Seed upserts every provider in the file and creates any missing operation
// mappings. Existing mappings are left alone, so re-seeding is safe.
func Seed(ctx context.Context, reg *Registry, mappings *Mappings, seed *SeedFile) error {
	for _, sp := range seed.Providers {
		typ, err := model.ParseServiceType(sp.Type)
		if err != nil {
			return eris.Wrapf(err, "registry: seed provider %s", sp.Name)
		}

		in := UpsertInput{
			Name: sp.Name,
			Type: typ,
			Config: model.ProviderConfig{
				APIKey:  sp.APIKey,
				BaseURL: sp.BaseURL,
			},
			Limits: sp.Limits,
		}
		if typ == model.TypeAIEngine {
			in.Config.AI = &model.AIEngineConfig{
				Model:       sp.Model,
				MaxTokens:   sp.MaxTokens,
				Temperature: sp.Temperature,
			}
		}
		for _, c := range sp.Capabilities {
			op := model.Operation(c)
			if !op.Valid() {
				return eris.Errorf("registry: seed provider %s: unknown capability %q", sp.Name, c)
			}
			in.Capabilities = append(in.Capabilities, op)
		}

		p, err := reg.Upsert(ctx, in)
		if err != nil {
			return eris.Wrapf(err, "registry: seed provider %s", sp.Name)
		}

		if sp.Priority != nil && p.Priority != *sp.Priority {
			if _, err := reg.SetPriority(ctx, p.ID, *sp.Priority); err != nil {
				return eris.Wrapf(err, "registry: seed provider %s priority", sp.Name)
			}
		}

		for _, o := range sp.Operations {
			op := model.Operation(o)
			if !op.Valid() {
				return eris.Errorf("registry: seed provider %s: unknown operation %q", sp.Name, o)
			}
			if _, err := mappings.Create(ctx, op, p.ID, nil, true); err != nil {
				if eris.Is(err, store.ErrConflict) {
					continue
				}
				return eris.Wrapf(err, "registry: seed mapping %s -> %s", o, sp.Name)
			}
		}

		zap.L().Info("provider seeded",
			zap.String("name", sp.Name),
			zap.String("type", string(typ)),
			zap.Int("operations", len(sp.Operations)),
		)
	}

	return nil
}
