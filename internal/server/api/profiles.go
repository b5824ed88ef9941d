package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ayusman/eightball/internal/detector"
	"github.com/ayusman/eightball/internal/logging"
	"github.com/ayusman/eightball/internal/profile"
	"github.com/ayusman/eightball/internal/store"
)

// Activator switches the live pipeline to a named profile.
type Activator interface {
	UseProfile(name string) error
}

// ProfileHandler handles HTTP requests for felt profile resources.
type ProfileHandler struct {
	store     *store.Store
	activator Activator
	log       *logrus.Logger
}

// NewProfileHandler creates a ProfileHandler. activator may be nil, in which
// case activation only records the choice in settings.
func NewProfileHandler(s *store.Store, activator Activator, logger *logrus.Logger) *ProfileHandler {
	return &ProfileHandler{
		store:     s,
		activator: activator,
		log:       logging.OrDiscard(logger),
	}
}

// ServeHTTP routes:
//
//	/api/profiles               GET, POST
//	/api/profiles/{id}          GET, PUT, DELETE
//	/api/profiles/{id}/activate POST
func (h *ProfileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/profiles")
	path = strings.Trim(path, "/")

	if path == "" {
		switch r.Method {
		case http.MethodGet:
			h.list(w, r)
		case http.MethodPost:
			h.create(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if id, ok := strings.CutSuffix(path, "/activate"); ok {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.activate(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}

	id := path
	switch r.Method {
	case http.MethodGet:
		h.get(w, r, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, r, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Request and response types

type hsvBody struct {
	H int `json:"h" validate:"gte=0,lte=180"`
	S int `json:"s" validate:"gte=0,lte=255"`
	V int `json:"v" validate:"gte=0,lte=255"`
}

func (b hsvBody) toHSV() detector.HSV {
	return detector.HSV{H: b.H, S: b.S, V: b.V}
}

type createProfileRequest struct {
	Name string `json:"name" validate:"required,max=64"`
	// Color derives the range from a sampled felt color instead of explicit bounds.
	Color      string   `json:"color" validate:"omitempty,hexcolor"`
	Lower      *hsvBody `json:"lower" validate:"required_without=Color"`
	Upper      *hsvBody `json:"upper" validate:"required_without=Color"`
	MinArea    *float64 `json:"min_area" validate:"omitempty,gte=0"`
	KernelSize *int     `json:"kernel_size" validate:"omitempty,min=1,max=51"`
}

type updateProfileRequest struct {
	Name       *string  `json:"name" validate:"omitempty,min=1,max=64"`
	Lower      *hsvBody `json:"lower"`
	Upper      *hsvBody `json:"upper"`
	MinArea    *float64 `json:"min_area" validate:"omitempty,gte=0"`
	KernelSize *int     `json:"kernel_size" validate:"omitempty,min=1,max=51"`
}

type profileResponse struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Lower      detector.HSV `json:"lower"`
	Upper      detector.HSV `json:"upper"`
	MinArea    float64      `json:"min_area"`
	KernelSize int          `json:"kernel_size"`
	Swatch     string       `json:"swatch"`
	Builtin    bool         `json:"builtin"`
	Active     bool         `json:"active"`
	CreatedAt  string       `json:"created_at"`
	UpdatedAt  string       `json:"updated_at"`
}

type listProfilesResponse struct {
	Profiles []profileResponse `json:"profiles"`
	Active   string            `json:"active"`
}

// toResponse converts a store.Profile to a profileResponse.
func toResponse(rec *store.Profile, active string) profileResponse {
	p := profile.FromRecord(rec)
	sw := profile.HSVToRGBA(p.Config.Range.Midpoint())
	return profileResponse{
		ID:         rec.ID,
		Name:       rec.Name,
		Lower:      p.Config.Range.Lower,
		Upper:      p.Config.Range.Upper,
		MinArea:    rec.MinArea,
		KernelSize: rec.KernelSize,
		Swatch:     fmt.Sprintf("#%02x%02x%02x", sw.R, sw.G, sw.B),
		Builtin:    rec.Builtin,
		Active:     rec.Name == active,
		CreatedAt:  rec.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  rec.UpdatedAt.Format(time.RFC3339),
	}
}

func (h *ProfileHandler) activeName() string {
	name, err := profile.Active(h.store)
	if err != nil {
		h.log.WithError(err).Warn("Failed to read active profile")
		return profile.DefaultName
	}
	return name
}

// list handles GET /api/profiles.
func (h *ProfileHandler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.store.Profiles().List()
	if err != nil {
		h.log.WithError(err).Error("Failed to list profiles")
		writeError(w, http.StatusInternalServerError, "Failed to list profiles")
		return
	}

	active := h.activeName()
	response := listProfilesResponse{
		Profiles: make([]profileResponse, 0, len(records)),
		Active:   active,
	}
	for _, rec := range records {
		response.Profiles = append(response.Profiles, toResponse(rec, active))
	}

	writeJSON(w, http.StatusOK, response)
}

// get handles GET /api/profiles/{id}.
func (h *ProfileHandler) get(w http.ResponseWriter, r *http.Request, id string) {
	rec, ok := h.lookup(w, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec, h.activeName()))
}

// create handles POST /api/profiles.
func (h *ProfileHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	var p profile.Profile
	if req.Color != "" {
		derived, err := profile.FromColor(req.Name, req.Color, profile.DefaultTolerance)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		p = derived
	} else {
		p = profile.Profile{
			Name: req.Name,
			Config: detector.Config{
				Range:      detector.HSVRange{Lower: req.Lower.toHSV(), Upper: req.Upper.toHSV()},
				MinArea:    detector.DefaultMinArea,
				KernelSize: detector.DefaultKernelSize,
			},
		}
	}
	if req.MinArea != nil {
		p.Config.MinArea = *req.MinArea
	}
	if req.KernelSize != nil {
		p.Config.KernelSize = *req.KernelSize
	}

	if err := p.Config.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.store.Profiles().GetByName(p.Name); err == nil {
		writeError(w, http.StatusConflict, "Profile name already exists")
		return
	}

	rec := profile.Record(p, "", false)
	if err := h.store.Profiles().Create(rec); err != nil {
		h.log.WithError(err).WithField("name", p.Name).Error("Failed to create profile")
		writeError(w, http.StatusInternalServerError, "Failed to create profile")
		return
	}

	writeJSON(w, http.StatusCreated, toResponse(rec, h.activeName()))
}

// update handles PUT /api/profiles/{id}. Omitted fields keep their values.
func (h *ProfileHandler) update(w http.ResponseWriter, r *http.Request, id string) {
	rec, ok := h.lookup(w, id)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	oldName := rec.Name
	p := profile.FromRecord(rec)
	if req.Name != nil {
		if rec.Builtin && *req.Name != rec.Name {
			writeError(w, http.StatusConflict, "Built-in profiles cannot be renamed")
			return
		}
		p.Name = *req.Name
	}
	if req.Lower != nil {
		p.Config.Range.Lower = req.Lower.toHSV()
	}
	if req.Upper != nil {
		p.Config.Range.Upper = req.Upper.toHSV()
	}
	if req.MinArea != nil {
		p.Config.MinArea = *req.MinArea
	}
	if req.KernelSize != nil {
		p.Config.KernelSize = *req.KernelSize
	}

	if err := p.Config.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if p.Name != oldName {
		if existing, err := h.store.Profiles().GetByName(p.Name); err == nil && existing.ID != rec.ID {
			writeError(w, http.StatusConflict, "Profile name already exists")
			return
		}
	}

	updated := profile.Record(p, rec.ID, rec.Builtin)
	updated.CreatedAt = rec.CreatedAt
	if err := h.store.Profiles().Update(updated); err != nil {
		h.log.WithError(err).WithField("id", id).Error("Failed to update profile")
		writeError(w, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	active := h.activeName()
	if active == oldName {
		// Rebuild the live detector so edits take effect immediately.
		if err := h.setActive(p.Name); err != nil {
			h.log.WithError(err).WithField("name", p.Name).Warn("Failed to reload active profile")
		}
		active = p.Name
	}

	writeJSON(w, http.StatusOK, toResponse(updated, active))
}

// delete handles DELETE /api/profiles/{id}.
func (h *ProfileHandler) delete(w http.ResponseWriter, r *http.Request, id string) {
	rec, ok := h.lookup(w, id)
	if !ok {
		return
	}
	if rec.Builtin {
		writeError(w, http.StatusConflict, "Built-in profiles cannot be deleted")
		return
	}
	if rec.Name == h.activeName() {
		writeError(w, http.StatusConflict, "Active profile cannot be deleted")
		return
	}

	if err := h.store.Profiles().Delete(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return
		}
		h.log.WithError(err).WithField("id", id).Error("Failed to delete profile")
		writeError(w, http.StatusInternalServerError, "Failed to delete profile")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// activate handles POST /api/profiles/{id}/activate.
func (h *ProfileHandler) activate(w http.ResponseWriter, r *http.Request, id string) {
	rec, ok := h.lookup(w, id)
	if !ok {
		return
	}

	if err := h.setActive(rec.Name); err != nil {
		h.log.WithError(err).WithField("name", rec.Name).Error("Failed to activate profile")
		writeError(w, http.StatusInternalServerError, "Failed to activate profile")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(rec, rec.Name))
}

func (h *ProfileHandler) setActive(name string) error {
	if h.activator != nil {
		return h.activator.UseProfile(name)
	}
	return h.store.Settings().Set(store.SettingActiveProfile, name)
}

func (h *ProfileHandler) lookup(w http.ResponseWriter, id string) (*store.Profile, bool) {
	rec, err := h.store.Profiles().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Profile not found")
			return nil, false
		}
		h.log.WithError(err).WithField("id", id).Error("Failed to get profile")
		writeError(w, http.StatusInternalServerError, "Failed to get profile")
		return nil, false
	}
	return rec, true
}
