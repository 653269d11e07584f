// Package retro keeps per-phase retrospectives and the project memory file.
//
// Providers report notes as a Fragment with each task outcome. The
// Aggregator merges them into the phase's retrospective artifact, and when
// the phase closes, Promote copies the notes that read as lasting lessons
// into project memory. A note that names a file, mentions a workaround or
// is already remembered stays in the retrospective.
package retro
