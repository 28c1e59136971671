// Package filesystem provides filesystem implementations for riceify.
//
// This package contains the OS implementation of the types.FS interface and
// the atomic write primitive every mutating file operation is built on:
// content goes to a uniquely named temp file in the destination directory,
// which is then renamed over the destination, so a crash never leaves a
// half-written file behind.
package filesystem
