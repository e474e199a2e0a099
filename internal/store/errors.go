package store

import (
	"errors"
	"fmt"

	commune_errors "commune-chat/pkg/errors"
)

var domainErrors = []error{
	commune_errors.ErrUnauthenticated,
	commune_errors.ErrForbidden,
	commune_errors.ErrNotFound,
	commune_errors.ErrAlreadyExists,
	commune_errors.ErrInvalidInput,
	commune_errors.ErrInvalidReference,
}

// asBackend passes domain errors through verbatim and wraps everything else
// as a backend failure, so callers can distinguish "you may not" from "the
// store is down".
func asBackend(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range domainErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", commune_errors.ErrBackendUnavailable, err)
}
