// Command regctl loads a regulatory rule database and a device policy,
// computes the channel lists of a set of radios and either prints them or
// serves them with metrics and AFC expiry checks.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
