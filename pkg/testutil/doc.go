// Package testutil provides utilities for testing riceify components.
//
// Key components:
//   - FaultFS: a types.FS wrapper that injects per-path, per-operation
//     failures and can hold an operation until the test releases it
//   - Environment: an isolated directory tree (home, data, cache) under
//     t.TempDir() with helpers to write and read live files
//
// Usage guidelines:
//   - Core packages run against the real filesystem under t.TempDir();
//     failures are injected through FaultFS rather than by chmod tricks
//   - All test data should be defined inline, not in external files
//   - Each test should be completely isolated with no shared state
package testutil
