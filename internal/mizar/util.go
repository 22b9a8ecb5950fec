package mizar

import "fmt"

// debugf prints debug messages when Debug is true
func debugf(format string, args ...any) {
	if Debug {
		fmt.Printf(format, args...)
	}
}

// warnf prints a warning line in the standard arrow style
func warnf(format string, args ...any) {
	colArrow.Print("-> ")
	colWarn.Printf(format, args...)
}

// infof prints an informational line in the standard arrow style
func infof(format string, args ...any) {
	colArrow.Print("-> ")
	colSuccess.Printf(format, args...)
}
