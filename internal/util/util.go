// Package util provides the debug flag, error rendering and shared HTTP
// clients used by the rest of the module.
package util

import "fmt"

// IsDebug enables verbose logging and full error details.
var IsDebug bool

// ErrorHandler returns a string with the error message; when debug mode is
// enabled it returns the full error with details.
func ErrorHandler(err error) string {
	if IsDebug {
		return fmt.Sprintf("%+v", err)
	}
	return fmt.Sprintf("%v -- run the program with -debug to see details", err)
}
