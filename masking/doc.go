// Package masking renders notification channel values safe for display.
//
// Patterns use .NET-style regular expressions (lookaround and \G are
// supported) so that deployments can reuse the masking expressions configured
// for their identity server. Every match is replaced by the mask character.
//
// The default email pattern keeps the first character of the local part, the
// first character of the domain and the final domain label:
//
//	jane.doe@example.com -> j*******@e******.com
//
// The default mobile pattern keeps the last four digits.
//
// # What this package must NOT do
//
//   - Lengthen a value. A replacement that would do so falls back to a full mask.
//   - Return the original value when a pattern fails or times out.
//   - Import any other goRecovery package.
package masking
