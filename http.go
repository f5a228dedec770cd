package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"hkcountdown/internal/config"
	"hkcountdown/internal/countdown"
	"hkcountdown/internal/metrics"
	"hkcountdown/internal/requirements"
)

const (
	maxRequestBodyBytes = 1024
	maxTimerSeconds     = int(config.MaxDuration / time.Second)
	maxFrequencyMs      = int(config.MaxDuration / time.Millisecond)
)

// configureRequest replaces the countdown. FrequencyMs defaults to one second.
type configureRequest struct {
	Seconds     int `json:"seconds"`
	FrequencyMs int `json:"frequency_ms"`
}

type commandRequest struct {
	Action           string `json:"action"`
	KeepTotalElapsed bool   `json:"keep_total_elapsed"`
}

type healthResponse struct {
	Errors  []string `json:"errors"`
	Failing []string `json:"failing"`
}

// router is satisfied by the HAP server mux.
type router interface {
	Handle(pattern string, handler http.Handler)
}

func registerRoutes(mux router, s *session, agg *requirements.Aggregator, limiter *rate.Limiter, log logrus.FieldLogger) {
	mux.Handle("/timer", timerHandler(s, limiter, log))
	mux.Handle("/healthz", healthzHandler(agg))
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
}

func timerHandler(s *session, limiter *rate.Limiter, log logrus.FieldLogger) http.HandlerFunc {
	log = log.WithField("component", "http")

	return func(res http.ResponseWriter, req *http.Request) {
		log := log.WithFields(logrus.Fields{
			"method":     req.Method,
			"user_agent": req.Header.Get("User-Agent"),
		})

		switch req.Method {
		case http.MethodGet:
			log.Debug("timer state requested")
			writeJSON(res, http.StatusOK, s.State())

		case http.MethodPut:
			if !limiter.Allow() {
				http.Error(res, "Too many requests", http.StatusTooManyRequests)
				return
			}
			var body configureRequest
			if err := decodeBody(res, req, &body); err != nil {
				log.Warnf("PUT request failed with: %v", err)
				http.Error(res, "Invalid request format", http.StatusBadRequest)
				return
			}
			if body.Seconds <= 0 {
				http.Error(res, "Timer must be positive", http.StatusBadRequest)
				return
			}
			if body.Seconds > maxTimerSeconds {
				http.Error(res, "Timer exceeds maximum duration", http.StatusBadRequest)
				return
			}
			if body.FrequencyMs < 0 {
				http.Error(res, "Frequency must be positive", http.StatusBadRequest)
				return
			}
			if body.FrequencyMs > maxFrequencyMs {
				http.Error(res, "Frequency exceeds maximum", http.StatusBadRequest)
				return
			}
			frequency := time.Second
			if body.FrequencyMs > 0 {
				frequency = time.Duration(body.FrequencyMs) * time.Millisecond
			}

			err := s.Configure(time.Duration(body.Seconds)*time.Second, frequency)
			switch {
			case errors.Is(err, countdown.ErrInvalidDuration), errors.Is(err, countdown.ErrInvalidFrequency):
				log.Warnf("PUT request rejected: %v", err)
				http.Error(res, "Invalid countdown", http.StatusBadRequest)
				return
			case errors.Is(err, errSessionClosed):
				http.Error(res, err.Error(), http.StatusServiceUnavailable)
				return
			case err != nil:
				log.Errorf("configuring countdown: %v", err)
				http.Error(res, "Internal error", http.StatusInternalServerError)
				return
			}
			metrics.Commands.WithLabelValues("configure").Inc()
			log.Infof("Set countdown to %d seconds", body.Seconds)
			writeJSON(res, http.StatusOK, map[string]bool{"success": true})

		case http.MethodPost:
			if !limiter.Allow() {
				http.Error(res, "Too many requests", http.StatusTooManyRequests)
				return
			}
			var body commandRequest
			if err := decodeBody(res, req, &body); err != nil {
				log.Warnf("POST request failed with: %v", err)
				http.Error(res, "Invalid request format", http.StatusBadRequest)
				return
			}

			err := s.Apply(body.Action, body.KeepTotalElapsed)
			switch {
			case errors.Is(err, errUnknownAction):
				http.Error(res, err.Error(), http.StatusBadRequest)
				return
			case err != nil:
				http.Error(res, err.Error(), http.StatusServiceUnavailable)
				return
			}
			metrics.Commands.WithLabelValues(body.Action).Inc()
			writeJSON(res, http.StatusOK, map[string]bool{"success": true})

		default:
			log.Debug("HTTP method not supported")
			http.Error(res, "Not supported", http.StatusNotImplemented)
		}
	}
}

func healthzHandler(agg *requirements.Aggregator) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		errs := agg.Errors()
		status := http.StatusOK
		if len(errs) > 0 {
			status = http.StatusServiceUnavailable
		}
		writeJSON(res, status, healthResponse{Errors: errs, Failing: agg.Failing()})
	}
}

func decodeBody(res http.ResponseWriter, req *http.Request, v any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(res, req.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func writeJSON(res http.ResponseWriter, status int, v any) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(status)
	_ = json.NewEncoder(res).Encode(v)
}
