// Package domain holds the identifiers shared by the behavior core.
// This package and its children are PURE and must NOT import any infrastructure packages.
package domain

import "errors"

// ErrInvalidArgument marks an override request naming something the core does not know.
// Transports map it to an "invalid_argument" reply.
var ErrInvalidArgument = errors.New("invalid argument")
