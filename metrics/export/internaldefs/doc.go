// Package internaldefs holds the metric names, help strings and bucket
// boundaries shared by the Prometheus and OTel exporters.
//
// Both exporters read from this package so that a goRecovery counter has the
// same name everywhere. It performs no I/O.
package internaldefs
