// Package response writes the JSON envelope shared by every endpoint.
package response

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mentorclub/auth-service/pkg/apperror"
)

// Envelope is the body of every response. Code is only set on failures.
type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Data    interface{} `json:"data"`
}

func write(w http.ResponseWriter, statusCode int, envelope Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(envelope)
}

func WriteJSON(w http.ResponseWriter, statusCode int, status bool, message string, data interface{}) {
	write(w, statusCode, Envelope{Status: status, Message: message, Data: data})
}

func Success(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	WriteJSON(w, statusCode, true, message, data)
}

func Error(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, false, message, nil)
}

// AppError writes a mapped application error, including its catalog code.
func AppError(w http.ResponseWriter, err *apperror.AppError) {
	write(w, err.Status, Envelope{Message: err.Message, Code: err.Code})
}

// TooManyRequests tells the client how long to back off before retrying.
func TooManyRequests(w http.ResponseWriter, retryAfter time.Duration, err *apperror.AppError) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
	AppError(w, err)
}

func BadRequest(w http.ResponseWriter, message string) {
	AppError(w, apperror.NewBadRequest(message))
}

func Unauthorized(w http.ResponseWriter, message string) {
	AppError(w, apperror.NewUnauthorized(message))
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, message)
}
