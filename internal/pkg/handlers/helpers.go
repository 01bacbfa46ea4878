package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-openapi/runtime/middleware/header"
	"github.com/pkg/errors"

	"github.com/jake-scott/kasa-cli/internal/pkg/kasaapi"
	"github.com/jake-scott/kasa-cli/internal/pkg/logging"
)

// 4kb is plenty for a state change
const maxBodySize = 4 * 1024

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func sendJSONResponse(w http.ResponseWriter, r *http.Request, status int, d interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	if err := enc.Encode(d); err != nil {
		logging.Logger(r.Context()).WithError(err).Error("sending json response")
	}
}

// errorKind maps the session failure kinds onto an HTTP status and a short
// name for API clients
func errorKind(err error) (int, string) {
	switch {
	case errors.Is(err, kasaapi.ErrDeviceNotFound):
		return http.StatusNotFound, "device-not-found"
	case errors.Is(err, kasaapi.ErrUnsupportedDeviceType):
		return http.StatusUnprocessableEntity, "unsupported-device-type"
	case errors.Is(err, kasaapi.ErrAuthentication):
		return http.StatusUnauthorized, "authentication"
	case errors.Is(err, kasaapi.ErrDirectoryFetch):
		return http.StatusBadGateway, "device-list"
	case errors.Is(err, kasaapi.ErrCommand):
		return http.StatusBadGateway, "command"
	case errors.Is(err, kasaapi.ErrTransport):
		return http.StatusBadGateway, "transport"
	}

	return http.StatusInternalServerError, "internal"
}

func sendErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := errorKind(err)
	logging.Logger(r.Context()).WithError(err).Errorf("request failed: %s", kind)

	sendJSONResponse(w, r, status, errorResponse{Error: err.Error(), Kind: kind})
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Header.Get("Content-Type") != "" {
		value, _ := header.ParseValueAndParams(r.Header, "Content-Type")
		if value != "application/json" {
			return fmt.Errorf("expected JSON request, got %s", value)
		}
	}

	reader := http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return err
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("request body must only contain a single JSON object")
	}

	return nil
}
