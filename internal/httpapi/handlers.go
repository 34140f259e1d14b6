package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/DoyleJ11/initiative-tracker/internal/encounter"
	"github.com/DoyleJ11/initiative-tracker/internal/hub"
	"github.com/DoyleJ11/initiative-tracker/internal/store"
	"github.com/DoyleJ11/initiative-tracker/internal/syncctl"
	"github.com/DoyleJ11/initiative-tracker/internal/turnclock"
	"github.com/DoyleJ11/initiative-tracker/internal/window"
	"github.com/go-chi/chi/v5"
)

// controlState is what the control endpoints answer with.
type controlState struct {
	Status             string              `json:"status"`
	Snapshot           *encounter.Snapshot `json:"snapshot,omitempty"`
	Display            string              `json:"display"`
	PendingTransitions int                 `json:"pendingTransitions"`
	LastError          string              `json:"lastError,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), struct {
		Error string `json:"error"`
	}{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errNoSession):
		return http.StatusNotFound
	case errors.Is(err, store.ErrNetwork):
		return http.StatusBadGateway
	case errors.Is(err, window.ErrPopupBlocked), errors.Is(err, syncctl.ErrNotLoaded):
		return http.StatusConflict
	case errors.Is(err, syncctl.ErrClosed), errors.Is(err, hub.ErrHubClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var (
	errBadRequest = errors.New("bad request")
	errNoSession  = errors.New("no control session")
)

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func session(h *hub.Hub, r *http.Request) (*syncctl.Controller, error) {
	ctl := h.Get(chi.URLParam(r, "id"))
	if ctl == nil {
		return nil, errNoSession
	}
	return ctl, nil
}

func writeControl(w http.ResponseWriter, ctl *syncctl.Controller, status int) {
	v, err := ctl.View()
	if err != nil {
		writeError(w, err)
		return
	}
	if !v.Loaded {
		if v.LastError != nil {
			writeError(w, v.LastError)
			return
		}
		writeJSON(w, http.StatusAccepted, controlState{Status: "loading", Display: v.Display.String()})
		return
	}

	out := controlState{
		Status:             "ready",
		Snapshot:           &v.Snapshot,
		Display:            v.Display.String(),
		PendingTransitions: v.PendingTransitions,
	}
	if v.LastError != nil {
		out.LastError = v.LastError.Error()
	}
	writeJSON(w, status, out)
}

// StartControl starts (or joins) the control session for an encounter.
func StartControl(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctl, err := h.Ensure(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeControl(w, ctl, http.StatusOK)
	}
}

func GetControl(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctl, err := session(h, r)
		if err != nil {
			writeError(w, err)
			return
		}
		writeControl(w, ctl, http.StatusOK)
	}
}

func EndControl(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.Remove(chi.URLParam(r, "id")) {
			writeError(w, errNoSession)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func Turn(h *hub.Hub, t turnclock.Transition) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctl, err := session(h, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := ctl.Turn(t); err != nil {
			writeError(w, err)
			return
		}
		writeControl(w, ctl, http.StatusOK)
	}
}

func AddCreature(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctl, err := session(h, r)
		if err != nil {
			writeError(w, err)
			return
		}
		var in store.CreatureInput
		if err := decode(r, &in); err != nil {
			writeError(w, err)
			return
		}
		c, err := ctl.AddCreature(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, c)
	}
}

func UpdateCreature(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctl, err := session(h, r)
		if err != nil {
			writeError(w, err)
			return
		}
		var patch store.CreaturePatch
		if err := decode(r, &patch); err != nil {
			writeError(w, err)
			return
		}
		c, err := ctl.UpdateCreature(r.Context(), chi.URLParam(r, "creatureID"), patch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

func DeleteCreature(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctl, err := session(h, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := ctl.DeleteCreature(r.Context(), chi.URLParam(r, "creatureID")); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func UpdateEncounter(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctl, err := session(h, r)
		if err != nil {
			writeError(w, err)
			return
		}
		var patch store.EncounterPatch
		if err := decode(r, &patch); err != nil {
			writeError(w, err)
			return
		}
		enc, err := ctl.UpdateEncounter(r.Context(), patch)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, enc)
	}
}

func OpenDisplay(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctl, err := session(h, r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := ctl.OpenDisplay(); err != nil {
			writeError(w, err)
			return
		}
		writeControl(w, ctl, http.StatusOK)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
