// Package ini reads and rewrites the small section/key=value files used by the
// key store.
//
// The format is line oriented:
//
//	[encoding]
//	facebook/scheme=xor
//	facebook/key=K ; trailing comment
//
// Blank lines and lines starting with ';' are ignored, and so are inline
// comments introduced by whitespace followed by ';'. Every entry belongs to a
// section; a line that is neither a section header nor a key=value pair aborts
// the parse.
//
// Writes are merge-rewrites: the existing file is parsed, the requested keys are
// replaced in place or appended to their section, and the result is written to a
// temporary file that atomically replaces the original. Readers therefore see
// either the old or the new file, never a partial one. Comments and blank lines
// are not carried over by a rewrite.
//
// There is no cache: every call opens and parses the file again.
package ini
