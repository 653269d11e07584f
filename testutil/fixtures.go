// Package testutil provides fixtures shared by phaseflow tests: temporary
// git repositories and sample feature artifacts.
package testutil

// SampleSpec is a minimal specification with the sections a task
// descriptor pulls in.
const SampleSpec = `# Add caching

## Overview

Cache expensive lookups behind a small client.

## Requirements

- Reads go through the cache.
- Entries expire after five minutes.
`

// SamplePlan is a minimal plan.
const SamplePlan = `# Plan: Add caching

## Architecture

An LRU cache client in internal/cache used by the store.

## Dependencies

No new modules.
`

// SampleTaskList has a Setup phase with two tasks and a story phase with
// three tasks, two of which may run in parallel.
const SampleTaskList = `# Add caching

## Phase 1: Setup

- [ ] T001 Create the cache package in internal/cache/doc.go
- [ ] T002 Add cache settings in internal/config/cache.go

## Phase 2: Story A

- [ ] T003 [US1] Add the cache client in internal/cache/client.go
- [ ] T004 [P] [US1] Add cache metrics in internal/cache/metrics.go
- [ ] T005 [P] [US1] Document caching in docs/cache.md
`
