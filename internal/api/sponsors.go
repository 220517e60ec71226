package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tankwar/internal/sponsor"
)

// Sponsor payloads carry base64 pattern images; cap bodies a little above
// the store's own pattern limit.
const maxSponsorBody = 2 << 20

// handleSponsorList serves the fixed slot array. Empty slots stay null so
// indices line up; base64 patterns are stripped unless ?full=1.
func (h *routerHandlers) handleSponsorList(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slots, err := h.sponsors.GetAll(kind)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.URL.Query().Get("full") != "1" {
			for i, sp := range slots {
				if sp != nil {
					stripped := sp.Stripped()
					slots[i] = &stripped
				}
			}
		}
		writeJSON(w, slots)
	}
}

func (h *routerHandlers) handleSponsorGet(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, ok := slotIndex(w, r, "index")
		if !ok {
			return
		}
		sp, err := h.sponsors.GetByIndex(kind, idx)
		if err != nil {
			sponsorReadError(w, err)
			return
		}
		writeJSON(w, sp)
	}
}

func (h *routerHandlers) handleSponsorAssign(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, ok := slotIndex(w, r, "index")
		if !ok {
			return
		}
		payload, ok := decodeSponsor(w, r)
		if !ok {
			return
		}
		baked, err := h.sponsors.Assign(kind, idx, payload)
		if err != nil {
			sponsorWriteError(w, err)
			return
		}
		stripped := baked.Stripped()
		writeJSON(w, &stripped)
	}
}

func (h *routerHandlers) handleSponsorClear(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, ok := slotIndex(w, r, "index")
		if !ok {
			return
		}
		if err := h.sponsors.Clear(kind, idx); err != nil {
			sponsorReadError(w, err)
			return
		}
		writeJSON(w, map[string]bool{"success": true})
	}
}

// handleClusterSponsorList serves cluster bindings keyed by cluster id.
func (h *routerHandlers) handleClusterSponsorList(w http.ResponseWriter, r *http.Request) {
	all := h.sponsors.ClusterAll()
	if r.URL.Query().Get("full") != "1" {
		for ci, sp := range all {
			stripped := sp.Stripped()
			all[ci] = &stripped
		}
	}
	writeJSON(w, all)
}

func (h *routerHandlers) handleClusterSponsorGet(w http.ResponseWriter, r *http.Request) {
	ci, ok := slotIndex(w, r, "clusterId")
	if !ok {
		return
	}
	sp, err := h.sponsors.GetCluster(ci)
	if err != nil {
		sponsorReadError(w, err)
		return
	}
	writeJSON(w, sp)
}

func (h *routerHandlers) handleClusterSponsorAssign(w http.ResponseWriter, r *http.Request) {
	ci, ok := slotIndex(w, r, "clusterId")
	if !ok {
		return
	}
	payload, ok := decodeSponsor(w, r)
	if !ok {
		return
	}
	baked, err := h.sponsors.AssignCluster(ci, payload)
	if err != nil {
		sponsorWriteError(w, err)
		return
	}
	stripped := baked.Stripped()
	writeJSON(w, &stripped)
}

func (h *routerHandlers) handleClusterSponsorClear(w http.ResponseWriter, r *http.Request) {
	ci, ok := slotIndex(w, r, "clusterId")
	if !ok {
		return
	}
	if err := h.sponsors.ClearCluster(ci); err != nil {
		sponsorReadError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

// slotIndex parses the numeric URL parameter, answering 400 itself on junk.
func slotIndex(w http.ResponseWriter, r *http.Request, param string) (int, bool) {
	raw := chi.URLParam(r, param)
	idx, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, "invalid "+param, http.StatusBadRequest)
		return 0, false
	}
	return idx, true
}

// decodeSponsor reads a bounded sponsor payload, answering 400 itself on
// malformed JSON.
func decodeSponsor(w http.ResponseWriter, r *http.Request) (sponsor.Sponsor, bool) {
	var payload sponsor.Sponsor
	body := http.MaxBytesReader(w, r.Body, maxSponsorBody)
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		writeError(w, "invalid sponsor payload", http.StatusBadRequest)
		return sponsor.Sponsor{}, false
	}
	return payload, true
}

// sponsorReadError maps store errors for GET and DELETE: anything that
// names a missing slot is a 404.
func sponsorReadError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sponsor.ErrEmptySlot),
		errors.Is(err, sponsor.ErrSlotOutOfRange),
		errors.Is(err, sponsor.ErrUnknownCluster):
		writeError(w, err.Error(), http.StatusNotFound)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// sponsorWriteError maps store errors for PUT: rejections carry the full
// problem list so the admin UI can show them all.
func sponsorWriteError(w http.ResponseWriter, err error) {
	var verr *sponsor.ValidationError
	switch {
	case errors.As(err, &verr):
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(verr)
	case errors.Is(err, sponsor.ErrSlotOutOfRange):
		writeJSONError(w, http.StatusBadRequest, "slot index out of range")
	case errors.Is(err, sponsor.ErrUnknownCluster):
		writeJSONError(w, http.StatusBadRequest, "unknown cluster")
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeJSONError emits the validation-shaped error list for a single
// problem, matching what PUT rejections always look like.
func writeJSONError(w http.ResponseWriter, code int, problems ...string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(&sponsor.ValidationError{Problems: problems})
}
