package rest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"go.uber.org/zap"
)

func (s *Server) HandleCreateFlow(w http.ResponseWriter, r *http.Request) {
	var flowDef model.FlowDef
	if err := json.NewDecoder(r.Body).Decode(&flowDef); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed flow definition")
		return
	}
	defer r.Body.Close()
	if flowDef.Id == "" {
		respondWithError(w, http.StatusBadRequest, "flow id is required")
		return
	}
	if err := s.flowService.Activate(&flowDef); err != nil {
		logger.Error("error activating flow", zap.String("flowId", flowDef.Id), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondOK(w, map[string]any{"flowId": flowDef.Id, "version": flowDef.Version})
}

func (s *Server) HandleGetFlow(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	flowDef, err := s.flowService.Get(flowId)
	if err != nil {
		respondWithError(w, http.StatusNotFound, "flow not found")
		return
	}
	respondWithJSON(w, http.StatusOK, flowDef)
}

func (s *Server) HandleDeactivateFlow(w http.ResponseWriter, r *http.Request) {
	flowId := mux.Vars(r)["id"]
	if err := s.flowService.Deactivate(flowId); err != nil {
		logger.Error("error deactivating flow", zap.String("flowId", flowId), zap.Error(err))
		respondWithError(w, http.StatusBadRequest, "error deactivating flow")
		return
	}
	respondOKWithoutBody(w)
}
