package errors

// ErrorTemplate defines a registered error type.
type ErrorTemplate struct {
	Category Category
	Message  string
	Detail   string
	DocURL   string
}

// Registered error codes.
const (
	CodeTruncatedFrame     = "E001"
	CodeUnknownFrameKind   = "E002"
	CodeMalformedMessage   = "E003"
	CodeFrameTooLarge      = "E004"
	CodeMalformedText      = "E020"
	CodeRouteTooLong       = "E021"
	CodeRouteOverflow      = "E022"
	CodePayloadEncode      = "E023"
	CodePayloadDecode      = "E024"
	CodeHandshakeRejected  = "E040"
	CodeOldClientVersion   = "E041"
	CodeInvalidHandshake   = "E042"
	CodeHeartbeatTimeout   = "E050"
	CodeConnectionFailed   = "E060"
	CodeConnectionLost     = "E061"
	CodeSendFailed         = "E062"
	CodeReconnectExhausted = "E070"
	CodeInvalidConfig      = "E080"
	CodeMissingConfig      = "E081"
	CodeInvalidPort        = "E082"
	CodeInvalidTransport   = "E083"
	CodeInvalidReconnect   = "E084"
	CodeNotConnected       = "E090"
	CodeRequestTimeout     = "E091"
	CodeInvalidPayload     = "E092"
)

// registry maps error codes to their templates.
var registry = map[string]ErrorTemplate{
	// ============================================
	// Protocol Errors (E001-E019)
	// ============================================

	CodeTruncatedFrame: {
		Category: CategoryProtocol,
		Message:  "Truncated frame",
		Detail:   "A transport delivery ended in the middle of a frame header or body. The whole delivery was discarded.",
	},
	CodeUnknownFrameKind: {
		Category: CategoryProtocol,
		Message:  "Unknown frame kind",
		Detail:   "A frame header carried a kind outside 1-5. The server may speak a different protocol.",
	},
	CodeMalformedMessage: {
		Category: CategoryProtocol,
		Message:  "Malformed message",
		Detail:   "The body of a data frame could not be decoded as a routed message.",
	},
	CodeFrameTooLarge: {
		Category: CategoryProtocol,
		Message:  "Frame too large",
		Detail:   "A frame body exceeds the 16 MiB limit of the 3-byte length field.",
	},

	// ============================================
	// Encoding Errors (E020-E039)
	// ============================================

	CodeMalformedText: {
		Category: CategoryEncoding,
		Message:  "Malformed text",
		Detail:   "A text field ended in the middle of a multi-byte sequence.",
	},
	CodeRouteTooLong: {
		Category: CategoryEncoding,
		Message:  "Route too long",
		Detail:   "Uncompressed routes are limited to 255 encoded bytes.",
	},
	CodeRouteOverflow: {
		Category: CategoryEncoding,
		Message:  "Route code overflow",
		Detail:   "Compressed route codes must fit in two bytes (0-65535).",
	},
	CodePayloadEncode: {
		Category: CategoryEncoding,
		Message:  "Payload encoding failed",
		Detail:   "The codec could not serialize the request payload.",
	},
	CodePayloadDecode: {
		Category: CategoryEncoding,
		Message:  "Payload decoding failed",
		Detail:   "The codec could not parse an inbound message.",
	},

	// ============================================
	// Handshake Errors (E040-E049)
	// ============================================

	CodeHandshakeRejected: {
		Category: CategoryHandshake,
		Message:  "Handshake rejected",
		Detail:   "The server answered the handshake with code 500.",
	},
	CodeOldClientVersion: {
		Category: CategoryHandshake,
		Message:  "Client version too old",
		Detail:   "The server answered the handshake with code 501 and will not accept this client version.",
	},
	CodeInvalidHandshake: {
		Category: CategoryHandshake,
		Message:  "Invalid handshake response",
		Detail:   "The handshake body from the server is not valid JSON.",
	},

	// ============================================
	// Heartbeat Errors (E050-E059)
	// ============================================

	CodeHeartbeatTimeout: {
		Category: CategoryHeartbeat,
		Message:  "Heartbeat timeout",
		Detail:   "Nothing was received from the server within twice the negotiated heartbeat interval.",
	},

	// ============================================
	// Transport Errors (E060-E069)
	// ============================================

	CodeConnectionFailed: {
		Category: CategoryTransport,
		Message:  "Connection failed",
		Detail:   "The transport reported an error while connecting or while connected.",
	},
	CodeConnectionLost: {
		Category: CategoryTransport,
		Message:  "Connection lost",
		Detail:   "The connection closed while requests were still waiting for a response.",
	},
	CodeSendFailed: {
		Category: CategoryTransport,
		Message:  "Send failed",
		Detail:   "The transport refused an outbound frame.",
	},

	// ============================================
	// Reconnect Errors (E070-E079)
	// ============================================

	CodeReconnectExhausted: {
		Category: CategoryReconnect,
		Message:  "Reconnect attempts exhausted",
		Detail:   "The connection was lost and every scheduled reconnect attempt failed.",
	},

	// ============================================
	// Configuration Errors (E080-E089)
	// ============================================

	CodeInvalidConfig: {
		Category: CategoryConfig,
		Message:  "Invalid pomelo.json",
		Detail:   "The pomelo.json configuration file is malformed.",
	},
	CodeMissingConfig: {
		Category: CategoryConfig,
		Message:  "Missing required configuration",
		Detail:   "A required configuration value is not set.",
	},
	CodeInvalidPort: {
		Category: CategoryConfig,
		Message:  "Invalid port number",
		Detail:   "Ports must be between 0 and 65535; 0 means the scheme default.",
	},
	CodeInvalidTransport: {
		Category: CategoryConfig,
		Message:  "Invalid transport",
		Detail:   "The transport must be \"ws\", \"wss\" or \"tcp\".",
	},
	CodeInvalidReconnect: {
		Category: CategoryConfig,
		Message:  "Invalid reconnect settings",
		Detail:   "Reconnect attempts and delays must not be negative.",
	},

	// ============================================
	// CLI Errors (E090-E099)
	// ============================================

	CodeNotConnected: {
		Category: CategoryCLI,
		Message:  "Not connected",
		Detail:   "The client did not reach the ready state before the deadline.",
	},
	CodeRequestTimeout: {
		Category: CategoryCLI,
		Message:  "Request timed out",
		Detail:   "No response arrived for the request before the deadline.",
	},
	CodeInvalidPayload: {
		Category: CategoryCLI,
		Message:  "Invalid payload",
		Detail:   "The payload argument is not valid JSON.",
	},
}

// GetAllCodes returns all registered error codes.
func GetAllCodes() []string {
	codes := make([]string, 0, len(registry))
	for code := range registry {
		codes = append(codes, code)
	}
	return codes
}

// GetTemplate returns the template for an error code.
func GetTemplate(code string) (ErrorTemplate, bool) {
	t, ok := registry[code]
	return t, ok
}

// Register adds a new error template to the registry.
func Register(code string, template ErrorTemplate) {
	registry[code] = template
}
