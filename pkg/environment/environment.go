package environment

import (
	"fmt"
	"strings"
)

// Environment is the deployment environment the process runs in.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Parse accepts the canonical names and the short forms dev, stage and prod.
// An empty string is Development.
func Parse(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dev", string(Development):
		return Development, nil
	case "stage", string(Staging):
		return Staging, nil
	case "prod", string(Production):
		return Production, nil
	default:
		return "", fmt.Errorf("unknown environment %q", s)
	}
}

// UnmarshalText lets config structs declare Environment fields directly.
func (e *Environment) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func (e Environment) String() string { return string(e) }

func (e Environment) IsDevelopment() bool { return e == Development }

func (e Environment) IsStaging() bool { return e == Staging }

func (e Environment) IsProduction() bool { return e == Production }
