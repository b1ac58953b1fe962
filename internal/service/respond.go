package service

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
)

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageResponse{Message: message})
}

/* Клиент получает только публичное сообщение, причина ошибки уходит в лог */
func writeError(logger *zap.Logger, w http.ResponseWriter, req *http.Request, err error, fields ...zap.Field) {
	status := StatusCode(err)
	fields = append(fields, zap.Error(err), zap.String("ip", req.RemoteAddr), zap.String("path", req.URL.Path))
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", fields...)
	} else {
		logger.Info("Request rejected", fields...)
	}
	writeMessage(w, status, PublicMessage(err))
}

// decodeJSON reads a JSON body into dst. Unknown fields are ignored.
func decodeJSON(req *http.Request, dst any) error {
	if err := json.NewDecoder(req.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return newError(ErrValidation, "Request body is required", err)
		}
		return newError(ErrValidation, "Invalid request body", err)
	}
	return nil
}
