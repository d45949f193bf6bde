package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"proxy-admin/fulfillment"
	"proxy-admin/middleware"
	"proxy-admin/models"
	"proxy-admin/reseller"
	"proxy-admin/store"
	"proxy-admin/utils"
)

const (
	dbTimeout = 10 * time.Second
	// vendor aggregation walks every sub-user, so it gets more room
	vendorTimeout = 2 * time.Minute
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// pooltype accepts the pools the reseller sells
	_ = v.RegisterValidation("pooltype", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case models.PoolResidential, models.PoolDatacenter, models.PoolMobile:
			return true
		}
		return false
	})
	return v
}

// errBadRequest marks malformed request bodies and query strings
var errBadRequest = errors.New("bad request")

// decodeJSON reads the request body into v and runs its validate tags
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body", errBadRequest)
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: invalid fields: %s", errBadRequest, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// statusFor maps domain errors onto HTTP statuses
func statusFor(err error) int {
	var apiErr *reseller.APIError
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, fulfillment.ErrNoDraft):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, fulfillment.ErrSubmitting):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, store.ErrInvalidCursor),
		errors.Is(err, store.ErrInvalidFilter),
		errors.Is(err, fulfillment.ErrValidation),
		errors.Is(err, fulfillment.ErrCountMismatch),
		errors.Is(err, fulfillment.ErrIncomplete),
		errors.Is(err, fulfillment.ErrConfirmationRequired),
		errors.Is(err, fulfillment.ErrAcknowledgementRequired),
		errors.Is(err, fulfillment.ErrInvalidPort),
		errors.Is(err, fulfillment.ErrDuplicatePort),
		errors.Is(err, fulfillment.ErrUnknownPort),
		errors.Is(err, fulfillment.ErrInvalidProtocol),
		errors.Is(err, fulfillment.ErrUnknownSlot),
		errors.Is(err, fulfillment.ErrUnknownProxy),
		errors.Is(err, fulfillment.ErrWrongKind):
		return http.StatusBadRequest
	case errors.Is(err, reseller.ErrAuthentication), errors.Is(err, reseller.ErrUnauthorized), errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes it as {"error": ...}. Internal failures
// are reported with the generic message instead of the raw error.
func respondError(w http.ResponseWriter, r *http.Request, err error, generic string) {
	status := statusFor(err)
	entry := log.WithFields(log.Fields{
		"request_id": middleware.RequestID(r.Context()),
		"method":     r.Method,
		"path":       r.URL.Path,
		"status":     status,
	}).WithError(err)

	msg := err.Error()
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error(generic)
		msg = generic
	default:
		entry.Warn(generic)
	}
	utils.WriteError(w, status, msg)
}

func withTimeout(r *http.Request, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), d)
}
