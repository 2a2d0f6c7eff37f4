package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nudgeworks/journey/logger"
	"go.uber.org/zap"
)

type enrollRequest struct {
	SubjectIds []string `json:"subjectIds"`
}

func (s *Server) HandleEnrollSubjects(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed enroll request")
		return
	}
	defer r.Body.Close()
	enrolled := make([]string, 0, len(req.SubjectIds))
	for _, subjectId := range req.SubjectIds {
		enrollment, created, err := s.engine.Enroll(flowId, subjectId)
		if err != nil {
			logger.Error("error enrolling subject", zap.String("flowId", flowId), zap.String("subjectId", subjectId), zap.Error(err))
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		if created {
			enrolled = append(enrolled, enrollment.Id)
		}
	}
	respondOK(w, map[string]any{"enrolled": enrolled})
}

func (s *Server) HandleListEnrollments(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	enrollments, err := s.enrollments.ListByFlow(flowId)
	if err != nil {
		logger.Error("error listing enrollments", zap.String("flowId", flowId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error listing enrollments")
		return
	}
	respondWithJSON(w, http.StatusOK, enrollments)
}

func (s *Server) HandleGetEnrollment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	enrollment, err := s.enrollments.Get(vars["flowId"], vars["id"])
	if err != nil {
		respondWithError(w, http.StatusNotFound, "enrollment not found")
		return
	}
	respondWithJSON(w, http.StatusOK, enrollment)
}

func (s *Server) HandleGetEnrollmentEvents(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	events, err := s.events.GetByEnrollment(vars["id"])
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "error reading events")
		return
	}
	respondWithJSON(w, http.StatusOK, events)
}

func (s *Server) HandlePauseEnrollment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.enrollments.Pause(vars["flowId"], vars["id"]); err != nil {
		logger.Error("error pausing enrollment", zap.String("enrollmentId", vars["id"]), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, "error pausing enrollment")
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleResumeEnrollment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.enrollments.Resume(vars["flowId"], vars["id"]); err != nil {
		logger.Error("error resuming enrollment", zap.String("enrollmentId", vars["id"]), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, "error resuming enrollment")
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleRemoveEnrollment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.enrollments.Remove(vars["flowId"], vars["id"]); err != nil {
		logger.Error("error removing enrollment", zap.String("enrollmentId", vars["id"]), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, "error removing enrollment")
		return
	}
	respondOKWithoutBody(w)
}
