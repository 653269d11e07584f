// Package drift surveys a project's structure and scores how far it has
// moved from a previous survey.
//
// A survey records languages, dependencies, directory layout and marker
// sets for architecture, security and testing. Comparing two surveys
// yields a Report: each dimension with a material change contributes its
// fixed weight once, and the total is categorized as none, alert or
// critical. A critical report carries a *CriticalHalt that the scheduler
// honors before starting the next phase.
//
// Basic usage:
//
//	s := drift.NewSurveyor(root)
//	next, err := s.Survey()
//	if err != nil {
//	    return err
//	}
//	report := drift.NewComparator().Compare(prev, next)
//	if err := report.Halt(); err != nil {
//	    return err // re-plan before continuing
//	}
package drift
