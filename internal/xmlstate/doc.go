// Package xmlstate drives declarative, namespace-aware XML parsing.
//
// Callers describe a grammar as a set of states, each mapping element
// names (and attribute paths such as "url/@id" or "@id") to parse steps:
// transitions into child states, optionally appending a fresh element to
// a list; assignments that convert element text or attribute values into
// typed fields; and handlers for recursive sub-grammars. The driver walks
// a streaming decoder, entering a state per matched start tag and leaving
// it on the end tag.
//
// Elements in namespaces the grammar does not declare are skipped
// silently. Within a declared namespace the grammar is strict: unexpected
// elements and attributes, and values that fail conversion, abort the
// parse with an error carrying the line and column of the offence.
package xmlstate
