// Package node assembles a runnable Spartic participant: a router over a
// transport, a paced outbound drain loop, and an HTTP control API for
// creating groups, contributing round blocks, and reading recovered
// results.
package node
