package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"go.uber.org/zap"
)

func (s *Server) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var template model.MessageTemplate
	if err := json.NewDecoder(r.Body).Decode(&template); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed template")
		return
	}
	defer r.Body.Close()
	if template.Id == "" || template.Subject == "" {
		respondWithError(w, http.StatusBadRequest, "template id and subject are required")
		return
	}
	if err := s.templates.Save(&template); err != nil {
		logger.Error("error saving template", zap.String("templateId", template.Id), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error saving template")
		return
	}
	respondOKWithoutBody(w)
}

func (s *Server) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	templateId := mux.Vars(r)["id"]
	template, err := s.templates.Get(templateId)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "template not found")
		return
	}
	respondWithJSON(w, http.StatusOK, template)
}
