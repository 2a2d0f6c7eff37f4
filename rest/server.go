package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nudgeworks/journey/engine"
	"github.com/nudgeworks/journey/flow"
	"github.com/nudgeworks/journey/logger"
	"github.com/nudgeworks/journey/persistence"
	"go.uber.org/zap"
)

type Server struct {
	http.Server
	Port        int
	flowService *flow.Service
	engine      *engine.Engine
	enrollments persistence.EnrollmentStore
	events      persistence.EventLog
	engagements persistence.EngagementStore
	subjects    persistence.SubjectStore
	templates   persistence.TemplateStore
}

func NewServer(httpPort int, flowService *flow.Service, eng *engine.Engine, enrollments persistence.EnrollmentStore, events persistence.EventLog, engagements persistence.EngagementStore, subjects persistence.SubjectStore, templates persistence.TemplateStore) (*Server, error) {
	s := &Server{
		Server: http.Server{
			Addr:        fmt.Sprintf(":%d", httpPort),
			IdleTimeout: 2 * time.Second,
		},
		Port:        httpPort,
		flowService: flowService,
		engine:      eng,
		enrollments: enrollments,
		events:      events,
		engagements: engagements,
		subjects:    subjects,
		templates:   templates,
	}

	router := mux.NewRouter()
	router.HandleFunc("/flows", s.HandleCreateFlow).Methods(http.MethodPost)
	router.HandleFunc("/flows/{id}", s.HandleGetFlow).Methods(http.MethodGet)
	router.HandleFunc("/flows/{id}", s.HandleDeactivateFlow).Methods(http.MethodDelete)
	router.HandleFunc("/flows/{id}/enrollments", s.HandleEnrollSubjects).Methods(http.MethodPost)
	router.HandleFunc("/flows/{id}/enrollments", s.HandleListEnrollments).Methods(http.MethodGet)

	router.HandleFunc("/enrollments/{flowId}/{id}", s.HandleGetEnrollment).Methods(http.MethodGet)
	router.HandleFunc("/enrollments/{flowId}/{id}", s.HandleRemoveEnrollment).Methods(http.MethodDelete)
	router.HandleFunc("/enrollments/{flowId}/{id}/pause", s.HandlePauseEnrollment).Methods(http.MethodPost)
	router.HandleFunc("/enrollments/{flowId}/{id}/resume", s.HandleResumeEnrollment).Methods(http.MethodPost)
	router.HandleFunc("/enrollments/{flowId}/{id}/events", s.HandleGetEnrollmentEvents).Methods(http.MethodGet)

	router.HandleFunc("/engagement", s.HandleRecordEngagement).Methods(http.MethodPost)

	router.HandleFunc("/subjects", s.HandleUpsertSubject).Methods(http.MethodPost)
	router.HandleFunc("/subjects/{id}", s.HandleGetSubject).Methods(http.MethodGet)

	router.HandleFunc("/templates", s.HandleCreateTemplate).Methods(http.MethodPost)
	router.HandleFunc("/templates/{id}", s.HandleGetTemplate).Methods(http.MethodGet)

	router.Use(loggingMiddleware)
	s.Handler = router
	return s, nil
}

func (s *Server) Start() error {
	logger.Info("starting http server on", zap.Int("port", s.Port))
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	logger.Info("stopping http server")
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	err := s.Shutdown(ctx)
	if err != nil {
		logger.Error("error shutting down http server")
	}
	return nil
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info(r.RequestURI)
		next.ServeHTTP(w, r)
	})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondOK(w http.ResponseWriter, message map[string]any) {
	respondWithJSON(w, http.StatusOK, message)
}

func respondOKWithoutBody(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
