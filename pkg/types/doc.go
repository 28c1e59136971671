// Package types defines the data model shared by riceify's core packages:
// the FS abstraction every file operation goes through, and the FileRecord,
// Profile and DependencyEdge records that the hash cache, the snapshot store
// and the switch engine exchange.
package types
