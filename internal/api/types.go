package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/brightclinic/scheduling/internal/scheduling"
)

type CreateAppointmentRequest struct {
	PatientID          string  `json:"patient_id"`
	StaffID            string  `json:"staff_id"`
	ServiceID          string  `json:"service_id"`
	Room               string  `json:"room,omitempty"`
	StartTime          string  `json:"start_time"`
	EndTime            string  `json:"end_time"`
	Priority           string  `json:"priority,omitempty"`
	Notes              string  `json:"notes,omitempty"`
	EstimatedCostCents *int64  `json:"estimated_cost_cents,omitempty"`
	ReminderChannel    *string `json:"reminder_channel,omitempty"`
	CreatedBy          string  `json:"created_by,omitempty"`
	Force              bool    `json:"force,omitempty"`
}

type CheckConflictsRequest struct {
	StaffID   string  `json:"staff_id"`
	Room      string  `json:"room,omitempty"`
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	ExcludeID *string `json:"exclude_appointment_id,omitempty"`
}

type RecurrencePatternRequest struct {
	Frequency      string `json:"frequency"`
	Interval       int    `json:"interval"`
	Weekdays       []int  `json:"weekdays,omitempty"`
	EndDate        string `json:"end_date"`
	MaxOccurrences int    `json:"max_occurrences,omitempty"`
}

type CreateSeriesRequest struct {
	Appointment CreateAppointmentRequest `json:"appointment"`
	Pattern     RecurrencePatternRequest `json:"pattern"`
}

type TransitionRequest struct {
	Reason         string  `json:"reason,omitempty"`
	By             string  `json:"by,omitempty"`
	FeedbackText   *string `json:"feedback_text,omitempty"`
	FeedbackRating *int    `json:"feedback_rating,omitempty"`
}

type BulkTransitionRequest struct {
	IDs    []string `json:"ids"`
	Action string   `json:"action"`
	Reason string   `json:"reason,omitempty"`
	By     string   `json:"by,omitempty"`
}

type RescheduleRequest struct {
	StartTime string  `json:"start_time"`
	EndTime   string  `json:"end_time"`
	Room      *string `json:"room,omitempty"`
}

type AppointmentResponse struct {
	ID                 uuid.UUID  `json:"id"`
	PatientID          uuid.UUID  `json:"patient_id"`
	StaffID            uuid.UUID  `json:"staff_id"`
	ServiceID          uuid.UUID  `json:"service_id"`
	Room               string     `json:"room,omitempty"`
	StartTime          time.Time  `json:"start_time"`
	EndTime            time.Time  `json:"end_time"`
	Status             string     `json:"status"`
	Priority           string     `json:"priority"`
	ParentID           *uuid.UUID `json:"parent_id,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	CancellationReason *string    `json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                 a.ID,
		PatientID:          a.PatientID,
		StaffID:            a.StaffID,
		ServiceID:          a.ServiceID,
		Room:               a.Room,
		StartTime:          a.StartTime,
		EndTime:            a.EndTime,
		Status:             string(a.Status),
		Priority:           string(a.Priority),
		ParentID:           a.ParentID,
		Notes:              a.Notes,
		CancellationReason: a.CancellationReason,
		CancelledAt:        a.CancelledAt,
	}
}

type SlotResponse struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Available bool      `json:"available"`
	Reason    string    `json:"reason,omitempty"`
}

type ConflictResponse struct {
	Type          string    `json:"type"`
	Description   string    `json:"description"`
	AppointmentID uuid.UUID `json:"conflicting_appointment_id"`
	Suggestion    string    `json:"suggestion"`
}

func toConflictResponses(conflicts []scheduling.Conflict) []ConflictResponse {
	out := make([]ConflictResponse, 0, len(conflicts))
	for _, c := range conflicts {
		out = append(out, ConflictResponse{
			Type:          string(c.Type),
			Description:   c.Description,
			AppointmentID: c.AppointmentID,
			Suggestion:    c.Suggestion,
		})
	}
	return out
}

type CreateAppointmentResponse struct {
	Appointment *AppointmentResponse `json:"appointment,omitempty"`
	Conflicts   []ConflictResponse   `json:"conflicts,omitempty"`
}

type SeriesConflictResponse struct {
	AppointmentID uuid.UUID          `json:"appointment_id"`
	Start         time.Time          `json:"start"`
	Conflicts     []ConflictResponse `json:"conflicts"`
}

type CreateSeriesResponse struct {
	Appointments []AppointmentResponse    `json:"appointments"`
	Conflicts    []SeriesConflictResponse `json:"conflicts,omitempty"`
}

type BulkResultResponse struct {
	ID    uuid.UUID `json:"id"`
	OK    bool      `json:"ok"`
	Error string    `json:"error,omitempty"`
}

type BulkTransitionResponse struct {
	Succeeded int                  `json:"succeeded"`
	Failed    int                  `json:"failed"`
	Results   []BulkResultResponse `json:"results"`
}

type StatusCountResponse struct {
	Status     string  `json:"status"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type HourBucketResponse struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

type DayBucketResponse struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type StatisticsResponse struct {
	RangeStart       time.Time             `json:"range_start"`
	RangeEnd         time.Time             `json:"range_end"`
	Total            int                   `json:"total"`
	Today            int                   `json:"today"`
	ThisWeek         int                   `json:"this_week"`
	ThisMonth        int                   `json:"this_month"`
	ByStatus         []StatusCountResponse `json:"by_status"`
	CompletionRate   float64               `json:"completion_rate"`
	CancellationRate float64               `json:"cancellation_rate"`
	NoShowRate       float64               `json:"no_show_rate"`
	BusiestHours     []HourBucketResponse  `json:"busiest_hours"`
	DailyTrend       []DayBucketResponse   `json:"daily_trend"`
}

func toStatisticsResponse(s *scheduling.Statistics) StatisticsResponse {
	resp := StatisticsResponse{
		RangeStart:       s.RangeStart,
		RangeEnd:         s.RangeEnd,
		Total:            s.Total,
		Today:            s.Today,
		ThisWeek:         s.ThisWeek,
		ThisMonth:        s.ThisMonth,
		CompletionRate:   s.CompletionRate,
		CancellationRate: s.CancellationRate,
		NoShowRate:       s.NoShowRate,
	}
	for _, sc := range s.ByStatus {
		resp.ByStatus = append(resp.ByStatus, StatusCountResponse{
			Status:     string(sc.Status),
			Count:      sc.Count,
			Percentage: sc.Percentage,
		})
	}
	for _, hb := range s.BusiestHours {
		resp.BusiestHours = append(resp.BusiestHours, HourBucketResponse{Hour: hb.Hour, Count: hb.Count})
	}
	for _, db := range s.DailyTrend {
		resp.DailyTrend = append(resp.DailyTrend, DayBucketResponse{Date: db.Date, Count: db.Count})
	}
	return resp
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
