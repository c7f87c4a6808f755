package config

import "os"

// ExpandEnv expands ${VAR}/$VAR references in raw YAML bytes before
// parsing, so secrets never need to live in the config file itself.
// Missing variables expand to empty string; validation catches any
// resulting empty required field.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
