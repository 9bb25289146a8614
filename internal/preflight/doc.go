// Package preflight provides readiness checks for the converter binary and
// the filesystem paths bidsify depends on.
//
// These checks run in two contexts:
//   - The run command calls RunAll before touching any session and refuses
//     to start when a check fails.
//   - The CLI "bidsify status" command displays the same results.
package preflight
