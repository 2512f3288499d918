package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/appointment"
)

func bookAppointmentHandler(svc *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		patientID, ok := bodyUUID(w, req.PatientID, "patient_id")
		if !ok {
			return
		}
		doctorID, ok := bodyUUID(w, req.DoctorID, "doctor_id")
		if !ok {
			return
		}

		res, err := svc.Book(r.Context(), appointment.BookRequest{
			PatientID:        patientID,
			DoctorID:         doctorID,
			Date:             req.Date,
			StartTime:        req.StartTime,
			ConsultationType: appointment.ConsultationType(req.ConsultationType),
			PaymentMethod:    appointment.PaymentMethod(req.PaymentMethod),
			Notes:            req.Notes,
		})
		if err != nil {
			if errors.Is(err, appointment.ErrPaymentGateway) && res != nil {
				writeJSON(w, http.StatusBadGateway, BookingFailureResponse{
					ErrorResponse: ErrorResponse{
						Error:   "payment_gateway_error",
						Details: "appointment created, retry payment via /appointments/" + res.Appointment.ID.String() + "/payment",
					},
					Appointment: res.Appointment,
				})
				return
			}
			handleServiceError(w, r, logger, err)
			return
		}

		writeJSON(w, http.StatusCreated, res)
	}
}

func getAppointmentHandler(svc *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func listAppointmentsHandler(svc *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		patientID, ok := bodyUUID(w, q.Get("patient_id"), "patient_id")
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		list, err := svc.ListByPatient(r.Context(), patientID, limit, offset)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		if list == nil {
			list = []appointment.Appointment{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func listDoctorAppointmentsHandler(svc *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := urlUUID(w, r, "doctorID")
		if !ok {
			return
		}
		actor, ok := actorID(w, r)
		if !ok {
			return
		}
		if actor != doctorID {
			writeError(w, http.StatusForbidden, "forbidden", "only the doctor can list their appointments")
			return
		}

		list, err := svc.ListByDoctor(r.Context(), doctorID, r.URL.Query().Get("date"))
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func updateStatusHandler(svc *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		doctorID, ok := actorID(w, r)
		if !ok {
			return
		}
		var req StatusUpdateRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		appt, err := svc.DoctorTransition(r.Context(), id, doctorID, appointment.AppointmentStatus(req.Status), req.Notes)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func cancelAppointmentHandler(svc *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		patientID, ok := actorID(w, r)
		if !ok {
			return
		}
		var req ReasonRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}

		appt, err := svc.PatientCancel(r.Context(), id, patientID, req.Reason)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func retryPaymentHandler(svc *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		patientID, ok := actorID(w, r)
		if !ok {
			return
		}

		res, err := svc.InitiatePayment(r.Context(), id, patientID)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func completeOfflinePaymentHandler(svc *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		collector, ok := actorID(w, r)
		if !ok {
			return
		}
		var req OfflineCollectionRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}
		if req.CollectedBy != "" {
			by, ok := bodyUUID(w, req.CollectedBy, "collected_by")
			if !ok {
				return
			}
			if by != collector {
				writeError(w, http.StatusForbidden, "forbidden", "collected_by must match "+ActorHeader)
				return
			}
		}

		appt, err := svc.CompleteOfflinePayment(r.Context(), id, collector)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}

func refundHandler(svc *appointment.Service, logger *zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := urlUUID(w, r, "id")
		if !ok {
			return
		}
		actor, ok := actorID(w, r)
		if !ok {
			return
		}
		var req ReasonRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}

		appt, err := svc.Refund(r.Context(), id, actor, req.Reason)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, appt)
	}
}
