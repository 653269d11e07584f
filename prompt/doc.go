// Package prompt loads and renders the text templates handed to capability
// providers and written into review requests.
//
// Templates are looked up in .phaseflow/prompts/, then prompts/ in the
// project, then the set embedded in the binary:
//
//	loader := prompt.NewLoader(root)
//	system, err := loader.LoadWithVars("execute", map[string]any{
//	    "Feature": "003-add-caching",
//	    "TaskID":  "T005",
//	})
//
// Builder assembles ad hoc prompts section by section.
package prompt
