// Package errors provides structured, actionable error messages for the
// replicad command.
//
// Each error has a code (e.g., "R100") that maps to a short message, an
// optional explanation and a hint. Codes are grouped by category:
//   - config: loading and validating replicad.json and REPLICAD_* overrides
//   - network: listening and dialing peers
//   - recording: reading and storing traffic recordings
//
// # Usage
//
//	err := errors.New("R100").
//	    WithDetail("No replicad.json in /etc/replicad").
//	    Wrap(cause)
//
//	errors.PrintError(err)
//	// ERROR R100: Configuration file not found
//	//
//	//   No replicad.json in /etc/replicad
//	//
//	//   Hint: Pass --config with the path to replicad.json or omit it to use defaults
package errors
