// Package model contains the domain types shared by the change-detection
// engine, the orchestrator and the adapters.
//
// Conventions:
//   - Observations (NormalizedItem, ChangeEvent) are values and never mutated
//     after creation.
//   - Target and Analysis are closed sum types; consumers switch over the
//     concrete variants.
//   - TrackerRun status only moves through Complete and Fail.
package model
