// Package id provides unique identifier generation for jobs.
package id

import "github.com/google/uuid"

// Prefix starts every generated job ID.
const Prefix = "seg-"

// Generate creates a new unique job ID.
// Format: seg-<uuid v4>
// Example: seg-3f2b6c1e-8d0a-4b7e-9a51-0c6f2d9e4a17
func Generate() string {
	return Prefix + uuid.NewString()
}
