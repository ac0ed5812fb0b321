package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"downloads-bridge/internal/models"
)

func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		jsonData, _ := json.Marshal(data)
		w.Write(jsonData)
	}
}

func respondError(w http.ResponseWriter, statusCode int, message string, err error) {
	errorMsg := message
	if err != nil {
		errorMsg = fmt.Sprintf("%s: %v", message, err)
	}

	response := models.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: errorMsg,
	}

	respondJSON(w, statusCode, response)
}
