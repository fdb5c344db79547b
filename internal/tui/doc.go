// Package tui renders the interactive discovery browser: a live list of
// hosts, services and devices as the resolvers find them.
package tui
