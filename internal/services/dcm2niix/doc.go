// Package dcm2niix wraps the dcm2niix CLI that converts a session's DICOM
// series into compressed NIFTI files.
//
// The client builds the subject/session output directory, runs the converter
// through an injectable Executor, streams its output into the logger, and
// treats a non-zero exit or an empty output directory as an external tool
// failure.
package dcm2niix
