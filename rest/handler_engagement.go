package rest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/model"
	"go.uber.org/zap"
)

// HandleRecordEngagement is the ingest path for delivery-layer events:
// opens, clicks, replies and unsubscribes reported by the message provider.
func (s *Server) HandleRecordEngagement(w http.ResponseWriter, r *http.Request) {
	var engagement model.Engagement
	if err := json.NewDecoder(r.Body).Decode(&engagement); err != nil {
		respondWithError(w, http.StatusBadRequest, "malformed engagement")
		return
	}
	defer r.Body.Close()
	if engagement.SubjectId == "" || engagement.Type == "" {
		respondWithError(w, http.StatusBadRequest, "subjectId and type are required")
		return
	}
	if engagement.Timestamp.IsZero() {
		engagement.Timestamp = time.Now()
	}
	if err := s.engagements.Record(&engagement); err != nil {
		logger.Error("error recording engagement", zap.String("subjectId", engagement.SubjectId), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "error recording engagement")
		return
	}
	respondOKWithoutBody(w)
}
