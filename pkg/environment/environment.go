package environment

import "strings"

// Environment is the deployment stage the service runs in.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Parse normalizes an APP_ENV value. Short aliases "dev", "stage" and "prod" are accepted;
// anything unrecognized is treated as Development.
func Parse(raw string) Environment {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	default:
		return Development
	}
}

// IsProduction reports whether e is Production.
func (e Environment) IsProduction() bool { return e == Production }

func (e Environment) String() string { return string(e) }
