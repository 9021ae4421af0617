package instrumentation

import "strings"

// ExtractUserDomain returns the domain part of an email address, or
// "unknown". Metrics carry the domain instead of the address to keep label
// cardinality bounded.
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
func ExtractUserDomain(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
		return parts[1]
	}
	return "unknown"
}

// Drive operations as they appear in metric labels and span names.
const (
	OperationList     = "list"
	OperationUpload   = "upload"
	OperationDownload = "download"
	OperationDelete   = "delete"
	OperationRevoke   = "revoke"
	OperationExchange = "exchange"
)
