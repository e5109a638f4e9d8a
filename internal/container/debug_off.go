//go:build !linalgdebug

package container

// boundsChecks enables range checks on the unchecked accessors. Build with
// -tags linalgdebug to turn them on.
const boundsChecks = false
