// Package logging configures slog for corpusctl.
//
// Console output goes to stderr: human-readable text on a terminal, JSON
// otherwise. With --debug a rotating JSON log is also written under
// ~/.corpusctl/logs/.
package logging
