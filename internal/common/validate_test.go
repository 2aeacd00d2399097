package common

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type addItemPayload struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"gte=1"`
}

func TestValidateReportsJSONFieldNames(t *testing.T) {
	err := Validate(&addItemPayload{ProductID: "nope", Qty: 0})
	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, http.StatusUnprocessableEntity, appErr.HTTPStatus)
	fields := appErr.Details.([]FieldError)
	require.Len(t, fields, 2)
	require.Equal(t, "productId", fields[0].Field)
	require.Equal(t, "uuid", fields[0].Rule)
	require.Equal(t, "qty", fields[1].Field)
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"productId":"x","extra":1}`))
	var payload addItemPayload
	err := DecodeJSON(req, &payload)
	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "BAD_REQUEST", appErr.Code)
}

func TestWriteErrorFallsBackToInternal(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, errors.New("boom"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "INTERNAL")

	rr = httptest.NewRecorder()
	WriteError(rr, NewAppError("EMPTY_CART", "cart is empty", http.StatusUnprocessableEntity, nil))
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "EMPTY_CART")
}
