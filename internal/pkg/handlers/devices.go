package handlers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jake-scott/kasa-cli/internal/pkg/kasaapi"
	"github.com/jake-scott/kasa-cli/internal/pkg/logging"
)

// SessionFactory returns a fresh, logged-out controller.  Each request gets
// its own so nothing is shared between requests.
type SessionFactory func(ctx context.Context) kasaapi.DeviceController

type DeviceHandler struct {
	newSession SessionFactory
}

func NewDeviceHandler(f SessionFactory) DeviceHandler {
	return DeviceHandler{newSession: f}
}

type deviceItem struct {
	Alias      string `json:"alias"`
	DeviceID   string `json:"deviceId"`
	DeviceType string `json:"deviceType"`
	Model      string `json:"model,omitempty"`
	Status     int    `json:"status"`
}

type setStateRequest struct {
	State string `json:"state"`
}

type setStateResponse struct {
	Alias string `json:"alias"`
	State string `json:"state"`
	OK    bool   `json:"ok"`
}

// ListDevices handles GET /devices
func (h *DeviceHandler) ListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.newSession(r.Context()).Devices()
	if err != nil {
		sendErrorResponse(w, r, err)
		return
	}

	items := make([]deviceItem, 0, len(devices))
	for _, d := range devices {
		items = append(items, deviceItem{
			Alias:      d.Alias,
			DeviceID:   d.DeviceID,
			DeviceType: string(d.DeviceType),
			Model:      d.DeviceModel,
			Status:     d.Status,
		})
	}

	sendJSONResponse(w, r, http.StatusOK, items)
}

// SetState handles POST /devices/{alias}/state
func (h *DeviceHandler) SetState(w http.ResponseWriter, r *http.Request) {
	ctxLogger := logging.Logger(r.Context())
	alias := mux.Vars(r)["alias"]

	var req setStateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		ctxLogger.WithError(err).Error("decoding JSON")
		sendJSONResponse(w, r, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad-request"})
		return
	}

	state, err := kasaapi.ParseDeviceState(req.State)
	if err != nil {
		sendJSONResponse(w, r, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "bad-request"})
		return
	}

	if err := h.newSession(r.Context()).SetDeviceState(alias, state); err != nil {
		sendErrorResponse(w, r, err)
		return
	}

	ctxLogger.Infof("device [%s] set to %s", alias, state)
	sendJSONResponse(w, r, http.StatusOK, setStateResponse{Alias: alias, State: string(state), OK: true})
}

// Router wires the handlers and the given middlewares into a mux router
func (h *DeviceHandler) Router(mws ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	r.Use(mws...)
	r.HandleFunc("/devices", h.ListDevices).Methods(http.MethodGet)
	r.HandleFunc("/devices/{alias}/state", h.SetState).Methods(http.MethodPost)

	return r
}
