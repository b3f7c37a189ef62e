// Package site holds the application layer served on top of the static file
// server: canned page routes, and login/register forms checked against a
// credential cache loaded from a YAML users file.
package site
