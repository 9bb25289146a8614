// Package classifier maps converted scan filenames to BIDS modality
// categories and derived filenames.
//
// Classification is an ordered list of substring rules evaluated first match
// wins: a name containing both "diff" and "bold" is diffusion because the
// diffusion rule comes first. The rule order is exported as DefaultRules so it
// can be inspected and tested as data. Functional scans derive a task label
// from the text following "bold", with configured scanner acceleration
// markers removed.
//
// Everything here is pure; the organizer package owns the filesystem side.
package classifier
