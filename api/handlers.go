package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"argus/core"

	"go.uber.org/zap"
)

// respondJSON writes data as JSON with the given status
func (a *API) respondJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		a.logger.Errorw("Failed to encode JSON response",
			"error", err,
			"data_type", fmt.Sprintf("%T", data))
	}
}

// writeError logs the full error and sends only message to the client
func writeError(w http.ResponseWriter, statusCode int, message string, err error, logger *zap.SugaredLogger) {
	if err != nil {
		logger.Errorw(message, "error", err, "status_code", statusCode)
	} else {
		logger.Warnw(message, "status_code", statusCode)
	}
	http.Error(w, message, statusCode)
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":         "healthy",
		"time":           time.Now().UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(a.started).Seconds()),
	}
	if a.sources.Counts != nil {
		ingested, alerts := a.sources.Counts.Counts()
		response["events_ingested"] = ingested
		response["alerts_generated"] = alerts
	}
	if a.sources.Rules != nil {
		response["rules_loaded"] = len(a.sources.Rules.Rules())
	}
	a.respondJSON(w, response, http.StatusOK)
}

func (a *API) getAlerts(w http.ResponseWriter, r *http.Request) {
	if a.sources.Alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "Alert history not available", nil, a.logger)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit parameter", err, a.logger)
		return
	}
	a.respondJSON(w, a.sources.Alerts.Recent(limit), http.StatusOK)
}

func (a *API) getBlockedIPs(w http.ResponseWriter, r *http.Request) {
	if a.sources.Blocklist == nil {
		writeError(w, http.StatusServiceUnavailable, "Blocklist not available", nil, a.logger)
		return
	}
	blocked, err := a.sources.Blocklist.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read blocklist", err, a.logger)
		return
	}
	a.respondJSON(w, blocked, http.StatusOK)
}

func (a *API) getRules(w http.ResponseWriter, r *http.Request) {
	if a.sources.Rules == nil {
		writeError(w, http.StatusServiceUnavailable, "Rule store not available", nil, a.logger)
		return
	}
	a.respondJSON(w, ruleDocuments(a.sources.Rules.Rules()), http.StatusOK)
}

func (a *API) getPendingRules(w http.ResponseWriter, r *http.Request) {
	if a.sources.Pending == nil {
		writeError(w, http.StatusServiceUnavailable, "Rule review store not available", nil, a.logger)
		return
	}
	pending, err := a.sources.Pending.Pending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pending rules", err, a.logger)
		return
	}
	a.respondJSON(w, ruleDocuments(pending), http.StatusOK)
}

func ruleDocuments(rules []*core.RuleDefinition) []core.RuleDocument {
	docs := make([]core.RuleDocument, 0, len(rules))
	for _, rule := range rules {
		docs = append(docs, rule.ToDocument())
	}
	return docs
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return DefaultAlertLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be positive, got %d", limit)
	}
	if limit > MaxAlertLimit {
		limit = MaxAlertLimit
	}
	return limit, nil
}
