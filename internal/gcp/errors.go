package gcp

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// wrapError annotates control-plane errors with the attempted action.
func wrapError(action string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", action, err)
}

// isNotFound reports whether err is a 404 from a Google API.
func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusNotFound
	}
	return false
}

// isAlreadyExists reports whether err is a 409 conflict from a Google API.
func isAlreadyExists(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusConflict
	}
	return false
}
