// Package deps reports whether the external binaries bidsify shells out to
// are installed.
package deps
