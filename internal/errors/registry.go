package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category   Category
	Message    string
	Detail     string
	Suggestion string
}

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// Configuration (R100-R199)
	"R100": {
		Category:   CategoryConfig,
		Message:    "Configuration file not found",
		Suggestion: "Pass --config with the path to replicad.json or omit it to use defaults",
	},
	"R101": {
		Category:   CategoryConfig,
		Message:    "Configuration file is invalid",
		Detail:     "replicad.json could not be parsed as JSON.",
		Suggestion: "Check that replicad.json is valid JSON",
	},
	"R102": {
		Category: CategoryConfig,
		Message:  "Invalid environment override",
		Detail:   "A REPLICAD_* environment variable has a value of the wrong type.",
	},
	"R103": {
		Category: CategoryConfig,
		Message:  "Configuration value out of range",
	},

	// Network (R200-R299)
	"R200": {
		Category:   CategoryNetwork,
		Message:    "Failed to listen",
		Suggestion: "Check that the listen address is free or set REPLICAD_LISTEN",
	},
	"R201": {
		Category: CategoryNetwork,
		Message:  "Failed to connect to peer",
		Detail:   "The peer did not accept a WebSocket connection before the retry budget ran out.",
	},

	// Recordings (R300-R399)
	"R300": {
		Category:   CategoryRecording,
		Message:    "Not a replicator recording",
		Suggestion: "Recordings are written as <session>-<segment>.rec files",
	},
	"R301": {
		Category: CategoryRecording,
		Message:  "Recording is truncated or corrupt",
	},
	"R302": {
		Category: CategoryRecording,
		Message:  "Recording sink failed",
	},
}

// Lookup returns the template for a code.
func Lookup(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}
