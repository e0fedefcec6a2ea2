package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/salasoft/battleplan/internal/models"
	"github.com/salasoft/battleplan/internal/schedule"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// missionTypesHandler returns the static mission type lookup table clients
// use to route each mission to its screen.
func (s *Server) missionTypesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(models.MissionTypeInfoMap))
}

func (s *Server) createPlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req models.CreatePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.createPlanHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	plan, err := s.catalog.CreatePlan(r.Context(), req.AuthorID, req)
	if err != nil {
		slog.Warn("Server.createPlanHandler: create failed", "author_id", req.AuthorID, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(plan))
}

func (s *Server) generatePlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if s.generator == nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("Plan generation is not configured"))
		return
	}
	var req models.GeneratePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.generatePlanHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	plan, err := s.generator.GeneratePlan(r.Context(), req)
	if err != nil {
		slog.Warn("Server.generatePlanHandler: generation failed", "author_id", req.AuthorID, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(plan))
}

// listPlansHandler lists published plans, or an author's plans (drafts
// included) when ?author= is given.
func (s *Server) listPlansHandler(w http.ResponseWriter, r *http.Request) {
	if author := r.URL.Query().Get("author"); author != "" {
		plans, err := s.catalog.ListPlansByAuthor(r.Context(), author)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(plans))
		return
	}
	plans, err := s.catalog.ListPublishedPlans(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(plans))
}

func (s *Server) getPlanHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := s.catalog.GetPlan(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(plan))
}

func (s *Server) publishPlanHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := s.catalog.Publish(r.Context(), chi.URLParam(r, "planID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Plan published", plan))
}

func (s *Server) startPlanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req models.StartPlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.startPlanHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	plan, err := s.catalog.GetPlan(r.Context(), req.PlanID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	e, err := s.tracker.StartPlan(r.Context(), req.UserID, plan, req.ConsentToShareProgress)
	if err != nil {
		slog.Warn("Server.startPlanHandler: start failed", "user_id", req.UserID, "plan_id", req.PlanID, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.Success(e))
}

func (s *Server) listEnrollmentsHandler(w http.ResponseWriter, r *http.Request) {
	enrollments, err := s.tracker.ListEnrollments(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(enrollments))
}

func (s *Server) getEnrollmentHandler(w http.ResponseWriter, r *http.Request) {
	e, err := s.tracker.GetEnrollment(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "planID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(e))
}

// todayMissionsHandler resolves the missions due today for one enrollment.
// An empty list means nothing is due, not an error.
func (s *Server) todayMissionsHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	planID := chi.URLParam(r, "planID")
	e, err := s.tracker.GetEnrollment(r.Context(), userID, planID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	plan, err := s.catalog.GetPlan(r.Context(), planID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	missions := schedule.ResolveTodayMissions(plan, e, s.clock.Now())
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"day_index": schedule.DayIndex(e.StartDate, s.clock.Now()),
		"missions":  missions,
	}))
}

func (s *Server) completeMissionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	var req models.CompleteMissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.completeMissionHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		writeDomainError(w, err)
		return
	}
	userID := chi.URLParam(r, "userID")
	planID := chi.URLParam(r, "planID")
	missionID := chi.URLParam(r, "missionID")
	e, err := s.processor.CompleteMission(r.Context(), userID, planID, missionID, req.Feeling)
	if err != nil {
		slog.Warn("Server.completeMissionHandler: completion failed",
			"user_id", userID, "plan_id", planID, "mission_id", missionID, "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Recorded(e))
}

func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	report, err := s.aggregator.Summary(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}

// calendarHandler returns the activity days of one month. Defaults to the
// current month when year/month are omitted.
func (s *Server) calendarHandler(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now().UTC()
	year := now.Year()
	month := now.Month()
	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid year"))
			return
		}
		year = y
	}
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid month"))
			return
		}
		month = time.Month(m)
	}
	days, err := s.aggregator.ActivityCalendar(r.Context(), chi.URLParam(r, "userID"), year, month)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]interface{}{
		"year":  year,
		"month": int(month),
		"days":  days,
	}))
}
