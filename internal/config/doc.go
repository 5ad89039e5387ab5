// Package config provides configuration loading and validation for the
// voting booth. Configuration is read from YAML, defaults fill the gaps and
// a few environment variables override the backend endpoints.
package config
