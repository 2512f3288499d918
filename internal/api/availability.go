package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/appointment"
	"github.com/hackgods/doctor-slot-booking/internal/schedule"
	"github.com/hackgods/doctor-slot-booking/internal/slotlock"
)

// doctorExists answers 404 for unknown doctors before any template is created.
func doctorExists(w http.ResponseWriter, r *http.Request, appts *appointment.Service, logger *zerolog.Logger, id uuid.UUID) bool {
	if _, err := appts.Doctor(r.Context(), id); err != nil {
		handleServiceError(w, r, logger, err)
		return false
	}
	return true
}

func getTemplateHandler(sched *schedule.Service, appts *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := urlUUID(w, r, "doctorID")
		if !ok || !doctorExists(w, r, appts, logger, doctorID) {
			return
		}

		t, err := sched.Template(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func putTemplateHandler(sched *schedule.Service, appts *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := urlUUID(w, r, "doctorID")
		if !ok {
			return
		}
		actor, ok := actorID(w, r)
		if !ok || !doctorExists(w, r, appts, logger, doctorID) {
			return
		}
		var t schedule.Template
		if !decodeJSON(w, r, &t) {
			return
		}

		saved, err := sched.Update(r.Context(), doctorID, actor, t)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func resetTemplateHandler(sched *schedule.Service, appts *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := urlUUID(w, r, "doctorID")
		if !ok {
			return
		}
		actor, ok := actorID(w, r)
		if !ok || !doctorExists(w, r, appts, logger, doctorID) {
			return
		}

		t, err := sched.Reset(r.Context(), doctorID, actor)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, t)
	}
}

func templateAnalyticsHandler(sched *schedule.Service, appts *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := urlUUID(w, r, "doctorID")
		if !ok || !doctorExists(w, r, appts, logger, doctorID) {
			return
		}

		t, err := sched.Template(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, t.Analytics())
	}
}

func listSlotsHandler(sched *schedule.Service, appts *appointment.Service, ledger *appointment.Ledger, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := urlUUID(w, r, "doctorID")
		if !ok || !doctorExists(w, r, appts, logger, doctorID) {
			return
		}
		date := chi.URLParam(r, "date")

		candidates, err := sched.Slots(r.Context(), doctorID, date)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		slots, err := ledger.Availability(r.Context(), doctorID, date, candidates, optionalActor(r))
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: doctorID, Date: date, Slots: slots})
	}
}

// slotKey reads doctorID, date and time from the URL and validates their format.
func slotKey(w http.ResponseWriter, r *http.Request, loc *time.Location) (schedule.SlotKey, bool) {
	doctorID, ok := urlUUID(w, r, "doctorID")
	if !ok {
		return schedule.SlotKey{}, false
	}
	date, start := chi.URLParam(r, "date"), chi.URLParam(r, "time")
	if _, err := schedule.ParseDate(date, loc); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return schedule.SlotKey{}, false
	}
	if _, err := schedule.ParseClock(start); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
		return schedule.SlotKey{}, false
	}
	return schedule.SlotKey{DoctorID: doctorID, Date: date, StartTime: start}, true
}

// offered answers 404 for unknown doctors and 400 for keys the doctor's
// template does not currently derive, past slots included.
func offered(w http.ResponseWriter, r *http.Request, sched *schedule.Service, appts *appointment.Service, logger *zerolog.Logger, key schedule.SlotKey) bool {
	if !doctorExists(w, r, appts, logger, key.DoctorID) {
		return false
	}
	slots, err := sched.Slots(r.Context(), key.DoctorID, key.Date)
	if err != nil {
		handleServiceError(w, r, logger, err)
		return false
	}
	for _, sl := range slots {
		if sl.StartTime == key.StartTime {
			return true
		}
	}
	handleServiceError(w, r, logger, fmt.Errorf("%w: %s %s", appointment.ErrSlotNotOffered, key.Date, key.StartTime))
	return false
}

func acquireLockHandler(sched *schedule.Service, appts *appointment.Service, locks *slotlock.Manager, loc *time.Location, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := slotKey(w, r, loc)
		if !ok {
			return
		}
		var req LockRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		holderID, ok := bodyUUID(w, req.HolderID, "holder_id")
		if !ok {
			return
		}
		if req.TTLSeconds < 0 {
			writeError(w, http.StatusBadRequest, "validation_error", "ttl_seconds must not be negative")
			return
		}
		if !offered(w, r, sched, appts, logger, key) {
			return
		}

		ttl := locks.DefaultTTL()
		if req.TTLSeconds > 0 && int64(req.TTLSeconds) < int64(ttl/time.Second) {
			ttl = time.Duration(req.TTLSeconds) * time.Second
		}

		lock, err := locks.Acquire(r.Context(), key, holderID, ttl)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, LockResponse{
			DoctorID:  key.DoctorID,
			Date:      key.Date,
			StartTime: key.StartTime,
			HolderID:  lock.HolderID,
			ExpiresAt: lock.ExpiresAt,
		})
	}
}

func releaseLockHandler(locks *slotlock.Manager, loc *time.Location, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := slotKey(w, r, loc)
		if !ok {
			return
		}
		holderID, ok := bodyUUID(w, r.URL.Query().Get("holder_id"), "holder_id")
		if !ok {
			return
		}

		if _, err := locks.ReleaseHeld(r.Context(), key, holderID); err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func slotStatusHandler(locks *slotlock.Manager, loc *time.Location, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, ok := slotKey(w, r, loc)
		if !ok {
			return
		}

		free, lock, err := locks.Check(r.Context(), key)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		resp := SlotStatusResponse{Available: free}
		if lock != nil {
			until := lock.ExpiresAt
			resp.LockedUntil = &until
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
