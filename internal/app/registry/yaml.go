package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/enrichlayer/core/internal/app/domain/provider"
)

// yamlCatalog mirrors config/providers.yaml's shape.
type yamlCatalog struct {
	Providers []yamlProvider `yaml:"providers"`
}

type yamlProvider struct {
	Slug                   string          `yaml:"slug"`
	DisplayName            string          `yaml:"displayName"`
	SupportedFields        []string        `yaml:"supportedFields"`
	CreditCostPerCall      int             `yaml:"creditCostPerCall"`
	RequiredCredentialType string          `yaml:"requiredCredentialType"`
	InputSchema            []yamlSchemaRow `yaml:"inputSchema"`
	OutputSchema           []yamlSchemaRow `yaml:"outputSchema"`
}

type yamlSchemaRow struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required"`
	Type     string `yaml:"type"`
}

func (r yamlSchemaRow) toField() provider.SchemaField {
	return provider.SchemaField{Name: r.Name, Required: r.Required, Type: r.Type}
}

// LoadDefinitionsFromYAML reads a provider catalog file shaped like
// config/providers.yaml and returns the parsed definitions. Adapter handles
// are not set here; the caller (cmd/appserver) wires live Adapter
// implementations onto the returned definitions before constructing the
// Registry used by the enrichment activity.
func LoadDefinitionsFromYAML(path string) ([]provider.Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider catalog %s: %w", path, err)
	}
	var cat yamlCatalog
	if err := yaml.Unmarshal(raw, &cat); err != nil {
		return nil, fmt.Errorf("parse provider catalog %s: %w", path, err)
	}
	defs := make([]provider.Definition, 0, len(cat.Providers))
	for _, p := range cat.Providers {
		fields := make([]provider.Field, 0, len(p.SupportedFields))
		for _, f := range p.SupportedFields {
			fields = append(fields, provider.Field(f))
		}
		inSchema := make([]provider.SchemaField, 0, len(p.InputSchema))
		for _, row := range p.InputSchema {
			inSchema = append(inSchema, row.toField())
		}
		outSchema := make([]provider.SchemaField, 0, len(p.OutputSchema))
		for _, row := range p.OutputSchema {
			outSchema = append(outSchema, row.toField())
		}
		defs = append(defs, provider.Definition{
			Slug:                   p.Slug,
			DisplayName:            p.DisplayName,
			SupportedFields:        fields,
			CreditCostPerCall:      p.CreditCostPerCall,
			InputSchema:            provider.Schema{Fields: inSchema},
			OutputSchema:           provider.Schema{Fields: outSchema},
			RequiredCredentialType: provider.CredentialType(p.RequiredCredentialType),
		})
	}
	return defs, nil
}
