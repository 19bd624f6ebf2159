// Package common holds identifiers shared across Spartic binaries.
package common

// PackageName labels metrics and logs emitted by this module.
const PackageName = "github.com/interfect/spartic"

// Version is stamped at build time via -ldflags.
var Version = "dev"
