// Package server provides the HTTP REST API for the thread engine.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/evanhsu/dealthread/internal/campaign"
	"github.com/evanhsu/dealthread/internal/engine"
	"github.com/evanhsu/dealthread/internal/matching"
)

// ErrEmailAlreadyExists indicates email is already registered
type ErrEmailAlreadyExists struct {
	Email string
}

func (e *ErrEmailAlreadyExists) Error() string {
	return fmt.Sprintf("email already registered: %s", e.Email)
}

// ErrInvalidCredentials indicates invalid login credentials
type ErrInvalidCredentials struct{}

func (e *ErrInvalidCredentials) Error() string {
	return "invalid email or password"
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		threadNotFound    *engine.ThreadNotFoundError
		actionNotFound    *engine.ActionNotFoundError
		campaignNotFound  *campaign.CampaignNotFoundError
		outOfOrder        *engine.StageOutOfOrderError
		notCurrent        *engine.ActionNotCurrentError
		conflicting       *engine.ConflictingResultError
		entryExists       *engine.EntryExistsError
		mergeConflict     *engine.MergeConflictError
		payloadInvalid    *engine.StagePayloadInvalidError
		resultNotLegal    *engine.ResultNotLegalError
		unknownActionType *engine.UnknownActionTypeError
		noConfidentMatch  *matching.NoConfidentMatchError
		validation        *ErrValidation
		emailExists       *ErrEmailAlreadyExists
		badCredentials    *ErrInvalidCredentials
	)

	switch {
	case errors.As(err, &threadNotFound),
		errors.As(err, &actionNotFound),
		errors.As(err, &campaignNotFound):
		return http.StatusNotFound
	case errors.As(err, &outOfOrder),
		errors.As(err, &notCurrent),
		errors.As(err, &conflicting),
		errors.As(err, &entryExists),
		errors.As(err, &mergeConflict),
		errors.As(err, &emailExists):
		return http.StatusConflict
	case errors.As(err, &payloadInvalid),
		errors.As(err, &resultNotLegal),
		errors.As(err, &unknownActionType),
		errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &noConfidentMatch):
		return http.StatusUnprocessableEntity
	case errors.As(err, &badCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
