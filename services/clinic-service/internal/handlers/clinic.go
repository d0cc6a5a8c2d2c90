package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/clinicnear/libs/auth"
	"github.com/md-rashed-zaman/clinicnear/libs/httpx"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/search"
)

// ClinicStore is the read/write surface the HTTP layer uses directly.
type ClinicStore interface {
	GetClinic(ctx context.Context, id string) (model.Clinic, error)
	ListAvailable(ctx context.Context, clinicID string, day *time.Time) ([]model.TimeSlot, error)
	CreateSlots(ctx context.Context, clinicID string, entries []model.SlotEntry) (int, error)
}

type ClinicHandler struct {
	store  ClinicStore
	engine *booking.Engine
	search *search.Aggregator
	logger *slog.Logger
}

func NewClinicHandler(store ClinicStore, engine *booking.Engine, agg *search.Aggregator, logger *slog.Logger) *ClinicHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClinicHandler{store: store, engine: engine, search: agg, logger: logger}
}

// Register mounts the clinic routes on mux.
func (h *ClinicHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/clinic/search", h.Search)
	mux.HandleFunc("GET /api/clinic/{id}", h.Get)
	mux.HandleFunc("GET /api/clinic/{id}/timeslots", h.ListSlots)
	mux.HandleFunc("POST /api/clinic/{id}/timeslots", h.CreateSlots)
	mux.HandleFunc("POST /api/clinic/{id}/book", h.Book)
}

type slotItem struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsAvailable bool   `json:"isAvailable"`
}

type clinicItem struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Address        string     `json:"address"`
	Latitude       float64    `json:"latitude"`
	Longitude      float64    `json:"longitude"`
	PhoneNumber    string     `json:"phoneNumber,omitempty"`
	Email          string     `json:"email,omitempty"`
	WalkInStart    string     `json:"walkInStart,omitempty"`
	WalkInEnd      string     `json:"walkInEnd,omitempty"`
	PhotoURL       string     `json:"photoUrl,omitempty"`
	Website        string     `json:"website,omitempty"`
	DistanceMeters *float64   `json:"distanceMeters,omitempty"`
	IsExternal     bool       `json:"isExternal"`
	ExternalID     string     `json:"externalId,omitempty"`
	AvailableSlots []slotItem `json:"availableSlots"`
}

type bookRequest struct {
	TimeSlotID string `json:"timeSlotId"`
	UserID     string `json:"userId"`
	Notes      string `json:"notes"`
}

type bookingItem struct {
	ID         string `json:"id"`
	ClinicID   string `json:"clinicId"`
	TimeSlotID string `json:"timeSlotId"`
	UserID     string `json:"userId"`
	Status     string `json:"status"`
	Notes      string `json:"notes,omitempty"`
	CreatedAt  string `json:"createdAt"`
}

type createSlotsRequest struct {
	TimeSlots []struct {
		Date  string `json:"date"`
		Times []struct {
			StartTime string `json:"startTime"`
			EndTime   string `json:"endTime"`
		} `json:"times"`
	} `json:"timeSlots"`
}

func (h *ClinicHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		userID = claims.UserID()
	}

	b, err := h.engine.Reserve(r.Context(), booking.Request{
		ClinicID:   r.PathValue("id"),
		TimeSlotID: req.TimeSlotID,
		UserID:     userID,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"booking": bookingItem{
			ID:         b.ID,
			ClinicID:   b.ClinicID,
			TimeSlotID: b.TimeSlotID,
			UserID:     b.UserID,
			Status:     string(b.Status),
			Notes:      b.Notes,
			CreatedAt:  b.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
}

func (h *ClinicHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lat")), 64)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "lat and lng are required numbers")
		return
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(q.Get("lng")), 64)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "lat and lng are required numbers")
		return
	}
	radius := search.DefaultRadiusMeters
	if raw := strings.TrimSpace(q.Get("radius")); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) || v <= 0 || v > search.MaxRadiusMeters {
			httpx.WriteError(w, http.StatusBadRequest, fmt.Sprintf("radius must be between 0 and %d meters", search.MaxRadiusMeters))
			return
		}
		radius = int(math.Ceil(v))
	}

	results, err := h.search.Search(r.Context(), search.Query{Lat: lat, Lng: lng, RadiusMeters: radius})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]clinicItem, 0, len(results))
	for _, res := range results {
		items = append(items, fromResult(res))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "clinics": items})
}

func (h *ClinicHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	c, err := h.store.GetClinic(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	slots, err := h.store.ListAvailable(r.Context(), id, nil)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item := clinicItem{
		ID:             c.ID,
		Name:           c.Name,
		Address:        c.Address,
		Latitude:       c.Latitude,
		Longitude:      c.Longitude,
		PhoneNumber:    c.PhoneNumber,
		Email:          c.Email,
		WalkInStart:    c.WalkInStart,
		WalkInEnd:      c.WalkInEnd,
		PhotoURL:       c.PhotoURL,
		AvailableSlots: toSlotItems(slots),
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "clinic": item})
}

func (h *ClinicHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var day *time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		day = &d
	}
	if _, err := h.store.GetClinic(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	slots, err := h.store.ListAvailable(r.Context(), id, day)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "timeSlots": toSlotItems(slots)})
}

// CreateSlots lets the owning clinic account publish new slots. Existing
// slots are skipped, so the call can be repeated safely.
func (h *ClinicHandler) CreateSlots(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if claims.Role != auth.RoleClinic {
		httpx.WriteError(w, http.StatusForbidden, "clinic account required")
		return
	}
	id := r.PathValue("id")
	c, err := h.store.GetClinic(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if c.OwnerUserID != claims.UserID() {
		httpx.WriteError(w, http.StatusForbidden, "not the owner of this clinic")
		return
	}

	var req createSlotsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	var entries []model.SlotEntry
	for _, day := range req.TimeSlots {
		for _, t := range day.Times {
			e, err := model.NewSlotEntry(strings.TrimSpace(day.Date), strings.TrimSpace(t.StartTime), strings.TrimSpace(t.EndTime))
			if err != nil {
				h.writeError(w, r, err)
				return
			}
			entries = append(entries, e)
		}
	}
	if len(entries) == 0 {
		httpx.WriteError(w, http.StatusBadRequest, "timeSlots must contain at least one time")
		return
	}

	inserted, err := h.store.CreateSlots(r.Context(), id, entries)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, map[string]any{"success": true, "inserted": inserted})
}

func (h *ClinicHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteError(w, status, "internal server error")
		return
	}
	httpx.WriteError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrMismatch),
		errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func toSlotItems(slots []model.TimeSlot) []slotItem {
	out := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		out = append(out, slotItem{
			ID:          s.ID,
			Date:        s.Date.Format(model.DateLayout),
			StartTime:   s.StartTime,
			EndTime:     s.EndTime,
			IsAvailable: s.IsAvailable,
		})
	}
	return out
}

func fromResult(res search.Result) clinicItem {
	d := res.DistanceMeters
	return clinicItem{
		ID:             res.ID,
		Name:           res.Name,
		Address:        res.Address,
		Latitude:       res.Latitude,
		Longitude:      res.Longitude,
		PhoneNumber:    res.PhoneNumber,
		Email:          res.Email,
		WalkInStart:    res.WalkInStart,
		WalkInEnd:      res.WalkInEnd,
		PhotoURL:       res.PhotoURL,
		Website:        res.Website,
		DistanceMeters: &d,
		IsExternal:     res.IsExternal,
		ExternalID:     res.ExternalID,
		AvailableSlots: toSlotItems(res.AvailableSlots),
	}
}
