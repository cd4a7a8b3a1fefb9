package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"

	"semhist/internal/errors"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError(err)
		os.Exit(exitCode(err))
	}
}

// printError reports err on stderr with the suggested fixes of its code.
func printError(err error) {
	if jsonErrors {
		var payload interface{} = map[string]string{"message": err.Error()}
		if se := asSemhistError(err); se != nil {
			payload = se
		}
		data, _ := json.MarshalIndent(payload, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	if se := asSemhistError(err); se != nil {
		for _, fix := range se.SuggestedFixes {
			if fix.Command != "" {
				fmt.Fprintf(os.Stderr, "  Try: %s  (%s)\n", fix.Command, fix.Description)
			}
		}
	}
}

func asSemhistError(err error) *errors.SemhistError {
	var se *errors.SemhistError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

func exitCode(err error) int {
	switch errors.CodeOf(err) {
	case errors.NotInitialized, errors.InvalidConfig:
		return 2
	case errors.GraphInvariantViolation:
		return 3
	}
	return 1
}
