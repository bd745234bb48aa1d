package config

import "fmt"

// Validate checks configuration values, returning sentinel errors that can
// be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("%w: configure at least one provider", ErrNoProviders)
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("%w: provider %d has no name", ErrInvalidProvider, i)
		}
		if p.Model == "" {
			return fmt.Errorf("%w: provider %q has no model", ErrInvalidProvider, p.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate provider name %q", ErrInvalidProvider, p.Name)
		}
		seen[p.Name] = true
	}

	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}
	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	if c.HealthFailureRate <= 0 || c.HealthFailureRate > 1 {
		return fmt.Errorf("%w: must be in (0, 1], got %v", ErrInvalidFailureRate, c.HealthFailureRate)
	}

	if c.WindowTTL <= 0 {
		return fmt.Errorf("%w: must be positive, got %v", ErrInvalidWindowTTL, c.WindowTTL)
	}

	if c.RetrievalTopK < 1 || c.RetrievalTopK > 20 {
		return fmt.Errorf("%w: must be between 1 and 20, got %d", ErrInvalidTopK, c.RetrievalTopK)
	}

	if c.PostgresHost == "" || c.PostgresDBName == "" {
		return fmt.Errorf("%w: host and database name are required", ErrInvalidPostgres)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be between 1 and 65535, got %d", ErrInvalidPostgres, c.PostgresPort)
	}

	return nil
}
