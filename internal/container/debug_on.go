//go:build linalgdebug

package container

const boundsChecks = true
