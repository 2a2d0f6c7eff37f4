package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"go.uber.org/zap"
)

func (s *Server) HandleUpsertSubject(w http.ResponseWriter, r *http.Request) {
	var subject model.Subject
	if err := json.NewDecoder(r.Body).Decode(&subject); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed subject")
		return
	}
	defer r.Body.Close()
	if subject.Id == "" {
		respondWithError(w, http.StatusBadRequest, "subject id is required")
		return
	}
	if subject.CreatedAt.IsZero() {
		subject.CreatedAt = time.Now()
	}
	subject.UpdatedAt = time.Now()
	if err := s.subjects.Save(&subject); err != nil {
		logger.Error("error saving subject", zap.String("subjectId", subject.Id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error saving subject")
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleGetSubject(w http.ResponseWriter, r *http.Request) {
	subjectId := mux.Vars(r)["id"]
	subject, err := s.subjects.Get(subjectId)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "subject not found")
		return
	}
	respondWithJSON(w, http.StatusOK, subject)
}
