// Package config resolves phaseflow settings and loads the project policy.
//
// Settings are flat dotted keys resolved with clear precedence:
//  1. Command-line flags (highest priority)
//  2. PHASEFLOW_* environment variables
//  3. .phaseflow.yaml in the git root
//  4. ~/.config/phaseflow/config.yaml
//  5. Built-in defaults (lowest priority)
//
// Nested YAML sections flatten to dotted keys, and the environment
// variable of a key upper-cases it with dots turned into underscores:
//
//	review:
//	  platform: gitlab       # review.platform, PHASEFLOW_REVIEW_PLATFORM
//
// Secrets (tokens, the approval secret, notification URLs) are only read
// from the global file and the environment, never from the repository.
//
//	r := config.NewResolver(config.Phaseflow())
//	settings, err := r.Resolve().Settings()
//
// # Policy
//
// The structured policy lives in .phaseflow/policy.yaml and is loaded with
// koanf. It holds drift weights and thresholds, provider routing rules,
// command providers, gate check commands and the deny-markers used when
// promoting notes to project memory. PHASEFLOW_POLICY_* variables
// override single values:
//
//	PHASEFLOW_POLICY_DRIFT_THRESHOLDS_ALERT=6
//	PHASEFLOW_POLICY_CHECKS_PRE_COMMIT="go vet ./...; gofmt -l ."
package config
