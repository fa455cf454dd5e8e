package provider

// WaterfallFieldConfig is the ordered provider list a caller wants tried for
// one field, overriding the registry's default coverage-based resolution.
type WaterfallFieldConfig struct {
	Providers []string
}

// WaterfallConfig maps a requested field to its caller-supplied provider
// order. A field absent from the map falls back to registry resolution.
type WaterfallConfig map[Field]WaterfallFieldConfig
