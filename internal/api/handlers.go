package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	redisclient "github.com/brightclinic/scheduling/internal/redis"
	"github.com/brightclinic/scheduling/internal/scheduling"
)

func availabilityHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, err := uuid.Parse(r.URL.Query().Get("staff_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
			return
		}

		day, err := time.Parse("2006-01-02", r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		durationMin, err := strconv.Atoi(r.URL.Query().Get("duration"))
		if err != nil || durationMin <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a positive number of minutes")
			return
		}

		granularity := 0
		if g := r.URL.Query().Get("granularity"); g != "" {
			granularity, err = strconv.Atoi(g)
			if err != nil || granularity <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_granularity", "granularity must be a positive number of minutes")
				return
			}
		}

		slots, err := svc.ComputeAvailability(r.Context(), staffID, day,
			time.Duration(durationMin)*time.Minute, time.Duration(granularity)*time.Minute)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{Start: s.Start, End: s.End, Available: s.Available, Reason: s.Reason})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		draft, ok := draftFromRequest(w, req)
		if !ok {
			return
		}

		appt, conflicts, err := svc.CreateAppointment(r.Context(), draft, req.Force)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		if appt == nil {
			// Conflicts are recoverable data: the caller can pick another
			// slot or retry with force.
			writeJSON(w, http.StatusConflict, CreateAppointmentResponse{
				Conflicts: toConflictResponses(conflicts),
			})
			return
		}

		resp := toAppointmentResponse(appt)
		writeJSON(w, http.StatusCreated, CreateAppointmentResponse{
			Appointment: &resp,
			Conflicts:   toConflictResponses(conflicts),
		})
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		staffID, err := uuid.Parse(r.URL.Query().Get("staff_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
			return
		}

		from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
			return
		}
		to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339")
			return
		}

		appts, err := svc.ListStaffSchedule(r.Context(), staffID, from, to)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func checkConflictsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CheckConflictsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		staffID, err := uuid.Parse(req.StaffID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
			return
		}

		start, end, ok := parseInterval(w, req.StartTime, req.EndTime)
		if !ok {
			return
		}

		var excludeID *uuid.UUID
		if req.ExcludeID != nil {
			id, err := uuid.Parse(*req.ExcludeID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exclude_id", "exclude_appointment_id must be a valid UUID")
				return
			}
			excludeID = &id
		}

		conflicts, err := svc.CheckConflicts(r.Context(), scheduling.Proposed{
			StaffID: staffID,
			Room:    req.Room,
			Start:   start,
			End:     end,
		}, excludeID)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toConflictResponses(conflicts))
	}
}

func createSeriesHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSeriesRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		draft, ok := draftFromRequest(w, req.Appointment)
		if !ok {
			return
		}

		endDate, err := time.Parse("2006-01-02", req.Pattern.EndDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_date", "pattern end_date must be YYYY-MM-DD")
			return
		}

		var weekdays []time.Weekday
		for _, d := range req.Pattern.Weekdays {
			if d < 0 || d > 6 {
				writeError(w, http.StatusBadRequest, "invalid_weekdays", "weekdays must be 0 (Sunday) through 6 (Saturday)")
				return
			}
			weekdays = append(weekdays, time.Weekday(d))
		}

		result, err := svc.CreateSeries(r.Context(), draft, scheduling.RecurrencePattern{
			Frequency:      scheduling.RecurrenceFrequency(req.Pattern.Frequency),
			Interval:       req.Pattern.Interval,
			Weekdays:       weekdays,
			EndDate:        endDate,
			MaxOccurrences: req.Pattern.MaxOccurrences,
		})
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		resp := CreateSeriesResponse{}
		for i := range result.Appointments {
			resp.Appointments = append(resp.Appointments, toAppointmentResponse(&result.Appointments[i]))
		}
		for _, oc := range result.Conflicts {
			resp.Conflicts = append(resp.Conflicts, SeriesConflictResponse{
				AppointmentID: oc.AppointmentID,
				Start:         oc.Start,
				Conflicts:     toConflictResponses(oc.Conflicts),
			})
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func transitionHandler(svc *scheduling.Service, action scheduling.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req TransitionRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
				return
			}
		}

		appt, err := svc.Transition(r.Context(), id, action, scheduling.TransitionOptions{
			Reason:         req.Reason,
			By:             req.By,
			FeedbackText:   req.FeedbackText,
			FeedbackRating: req.FeedbackRating,
		})
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func bulkTransitionHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkTransitionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		action := scheduling.Action(req.Action)
		if !action.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_action", "action must be one of confirm, start, complete, cancel, no_show")
			return
		}

		ids := make([]uuid.UUID, 0, len(req.IDs))
		for _, raw := range req.IDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_id", "ids must all be valid UUIDs")
				return
			}
			ids = append(ids, id)
		}

		results := svc.BulkTransition(r.Context(), ids, action, scheduling.TransitionOptions{
			Reason: req.Reason,
			By:     req.By,
		})

		resp := BulkTransitionResponse{}
		for _, res := range results {
			out := BulkResultResponse{ID: res.ID, OK: res.OK(), Error: res.Error}
			if res.OK() {
				resp.Succeeded++
			} else {
				resp.Failed++
			}
			resp.Results = append(resp.Results, out)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func rescheduleHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		start, end, ok := parseInterval(w, req.StartTime, req.EndTime)
		if !ok {
			return
		}

		appt, conflicts, err := svc.Reschedule(r.Context(), id, start, end, req.Room)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		if appt == nil {
			writeJSON(w, http.StatusConflict, CreateAppointmentResponse{
				Conflicts: toConflictResponses(conflicts),
			})
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func statisticsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", "from must be RFC3339")
			return
		}
		to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_to", "to must be RFC3339")
			return
		}

		stats, err := svc.Statistics(r.Context(), from, to)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toStatisticsResponse(stats))
	}
}

// Helpers

func draftFromRequest(w http.ResponseWriter, req CreateAppointmentRequest) (scheduling.Draft, bool) {
	var draft scheduling.Draft

	patientID, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return draft, false
	}
	staffID, err := uuid.Parse(req.StaffID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_staff_id", "staff_id must be a valid UUID")
		return draft, false
	}
	serviceID, err := uuid.Parse(req.ServiceID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_service_id", "service_id must be a valid UUID")
		return draft, false
	}

	start, end, ok := parseInterval(w, req.StartTime, req.EndTime)
	if !ok {
		return draft, false
	}

	draft = scheduling.Draft{
		PatientID:          patientID,
		StaffID:            staffID,
		ServiceID:          serviceID,
		Room:               req.Room,
		StartTime:          start,
		EndTime:            end,
		Priority:           scheduling.Priority(req.Priority),
		Notes:              req.Notes,
		EstimatedCostCents: req.EstimatedCostCents,
		CreatedBy:          req.CreatedBy,
	}
	if req.ReminderChannel != nil {
		c := scheduling.ReminderChannel(*req.ReminderChannel)
		draft.ReminderChannel = &c
	}
	return draft, true
}

func parseInterval(w http.ResponseWriter, rawStart, rawEnd string) (start, end time.Time, ok bool) {
	start, err := time.Parse(time.RFC3339, rawStart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be RFC3339")
		return start, end, false
	}
	end, err = time.Parse(time.RFC3339, rawEnd)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be RFC3339")
		return start, end, false
	}
	return start.UTC(), end.UTC(), true
}

func handleSchedulingError(w http.ResponseWriter, err error) {
	var ve *scheduling.ValidationError
	var te *scheduling.TransitionError

	switch {
	case errors.As(err, &ve):
		writeError(w, http.StatusBadRequest, "validation_failed", ve.Error())
	case errors.As(err, &te):
		writeError(w, http.StatusConflict, "invalid_status_transition", te.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrScheduleBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "schedule_busy", "schedule is being modified, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
