// Package cmd groups the Spartic binaries: the spartic node daemon and the
// in-process demo-chat driver.
package cmd
