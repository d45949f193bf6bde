// controllers/fulfillment.go
package controllers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"proxy-admin/fulfillment"
	"proxy-admin/models"
	"proxy-admin/utils"
)

// FulfillmentController exposes the fulfillment draft of an order
type FulfillmentController struct {
	Workflow *fulfillment.Workflow
}

func NewFulfillmentController(wf *fulfillment.Workflow) *FulfillmentController {
	return &FulfillmentController{Workflow: wf}
}

func orderID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

func (fc *FulfillmentController) respond(w http.ResponseWriter, r *http.Request, d *fulfillment.Draft, err error) {
	if err != nil {
		respondError(w, r, err, "Fulfillment failed")
		return
	}
	utils.WriteJSON(w, http.StatusOK, d)
}

// Start opens, or resumes, the draft of an order
func (fc *FulfillmentController) Start(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	d, err := fc.Workflow.Start(ctx, orderID(r))
	fc.respond(w, r, d, err)
}

func (fc *FulfillmentController) Get(w http.ResponseWriter, r *http.Request) {
	d, err := fc.Workflow.Get(orderID(r))
	fc.respond(w, r, d, err)
}

func (fc *FulfillmentController) Discard(w http.ResponseWriter, r *http.Request) {
	if err := fc.Workflow.Discard(orderID(r)); err != nil {
		respondError(w, r, err, "Fulfillment failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type updateSlotRequest struct {
	Field string `json:"field" validate:"required,oneof=protocol port ip username password"`
	Value string `json:"value"`
}

// UpdateSlot edits one field of a location slot
func (fc *FulfillmentController) UpdateSlot(w http.ResponseWriter, r *http.Request) {
	var req updateSlotRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, "Fulfillment failed")
		return
	}
	d, err := fc.Workflow.UpdateSlot(orderID(r), mux.Vars(r)["key"], req.Field, req.Value)
	fc.respond(w, r, d, err)
}

// AddLocation appends a location slot
func (fc *FulfillmentController) AddLocation(w http.ResponseWriter, r *http.Request) {
	var loc models.Location
	if err := decodeJSON(r, &loc); err != nil {
		respondError(w, r, err, "Fulfillment failed")
		return
	}
	d, err := fc.Workflow.AddLocation(orderID(r), loc)
	fc.respond(w, r, d, err)
}

// RemoveLocation deletes a location slot; requires confirm=true
func (fc *FulfillmentController) RemoveLocation(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	d, err := fc.Workflow.RemoveLocation(orderID(r), mux.Vars(r)["key"], confirmed)
	fc.respond(w, r, d, err)
}

// AddProxy appends one proxy to a special order's list
func (fc *FulfillmentController) AddProxy(w http.ResponseWriter, r *http.Request) {
	var entry fulfillment.ProxyEntry
	if err := decodeJSON(r, &entry); err != nil {
		respondError(w, r, err, "Fulfillment failed")
		return
	}
	d, err := fc.Workflow.AddProxy(orderID(r), entry)
	fc.respond(w, r, d, err)
}

func (fc *FulfillmentController) RemoveProxy(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Proxy index must be a number")
		return
	}
	d, err := fc.Workflow.RemoveProxy(orderID(r), index)
	fc.respond(w, r, d, err)
}

type composerRequest struct {
	Protocol string `json:"protocol" validate:"required"`
}

// SetComposer switches the protocol new proxies are composed with
func (fc *FulfillmentController) SetComposer(w http.ResponseWriter, r *http.Request) {
	var req composerRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, "Fulfillment failed")
		return
	}
	d, err := fc.Workflow.SetComposerProtocol(orderID(r), req.Protocol)
	fc.respond(w, r, d, err)
}

type portRequest struct {
	Port string `json:"port" validate:"required"`
}

// GetPorts lists the selectable ports for ?protocol=
func (fc *FulfillmentController) GetPorts(w http.ResponseWriter, r *http.Request) {
	protocol := r.URL.Query().Get("protocol")
	if protocol == "" {
		protocol = fulfillment.ProtocolHTTP
	}
	ports, err := fc.Workflow.AvailablePorts(orderID(r), protocol)
	if err != nil {
		respondError(w, r, err, "Fulfillment failed")
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string][]string{"ports": ports})
}

func (fc *FulfillmentController) RegisterPort(w http.ResponseWriter, r *http.Request) {
	var req portRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, "Fulfillment failed")
		return
	}
	d, err := fc.Workflow.RegisterPort(orderID(r), req.Port)
	fc.respond(w, r, d, err)
}

func (fc *FulfillmentController) UnregisterPort(w http.ResponseWriter, r *http.Request) {
	d, err := fc.Workflow.UnregisterPort(orderID(r), mux.Vars(r)["port"])
	fc.respond(w, r, d, err)
}

type submitRequest struct {
	Acknowledged bool `json:"acknowledged"`
}

// Submit writes the draft onto the order
func (fc *FulfillmentController) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err, "Fulfillment failed")
		return
	}
	ctx, cancel := withTimeout(r, dbTimeout)
	defer cancel()
	d, err := fc.Workflow.Submit(ctx, orderID(r), req.Acknowledged)
	if err != nil {
		respondError(w, r, err, "Failed to fulfill order")
		return
	}
	utils.WriteJSON(w, http.StatusOK, d)
}
