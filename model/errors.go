package model

import "errors"

var (
	// ErrLookupFailure indicates no rule table exists for the requested
	// country or domain.
	ErrLookupFailure = errors.New("no regulatory rules found")
	// ErrNoRulesFound is the country-set facing name of ErrLookupFailure.
	ErrNoRulesFound = ErrLookupFailure
	// ErrCapacityExceeded indicates a rule array exceeds the fixed maximum.
	ErrCapacityExceeded = errors.New("regulatory rule count exceeds capacity")
	// ErrInvalidChannel indicates no enumeration slot maps to a channel or frequency.
	ErrInvalidChannel = errors.New("invalid channel")
	// ErrNoChange indicates a country request matches the current country.
	ErrNoChange = errors.New("country unchanged")
	// ErrInternal indicates an internal fault while servicing a request.
	ErrInternal = errors.New("internal regulatory fault")
	// ErrUnknownRadio indicates a phy id with no engine.
	ErrUnknownRadio = errors.New("unknown radio")
)
