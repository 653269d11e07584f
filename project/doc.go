// Package project opens a phaseflow project: it finds the git root,
// resolves settings and policy, and opens the repository. The resulting
// Context is passed explicitly to everything that needs it.
//
//	pc, err := project.Open(project.Options{Dir: "."})
//	if err != nil {
//	    return err
//	}
//	if err := pc.EnsureStateDir(); err != nil {
//	    return err
//	}
//
// FileContext renders the files a task claims so an agent provider sees
// their current content:
//
//	fc := pc.NewFileContext()
//	fc.AddClaims(t.Paths)
//	text, err := fc.Build()
package project
