// Package internal provides build information shared across the node.
package internal

// Version is the build version of the node. It is overridden at build time
// with -ldflags "-X github.com/sealedvote/sealedvote-node/internal.Version=...".
var Version = "dev"
