package logging

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestFields returns the fields attached to every per-request log line
func RequestFields(requ *http.Request) logrus.Fields {
	return logrus.Fields{
		"request_id": uuid.NewString(),
		"method":     requ.Method,
		"url":        requ.URL.String(),
	}
}
