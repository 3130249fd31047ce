// Package logging writes one-line JSON records for events operators alert on.
// Everything else goes through the standard logger with [AREA] [LEVEL] prefixes.
package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Event     string `json:"event"`
	Level     string `json:"level"`
	OrderID   string `json:"order_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Message   string `json:"message,omitempty"`
}

type record struct {
	Fields
	Timestamp string `json:"timestamp"`
}

func Event(fields Fields) {
	if fields.Level == "" {
		fields.Level = "info"
	}
	data, err := json.Marshal(record{Fields: fields, Timestamp: time.Now().UTC().Format(time.RFC3339Nano)})
	if err != nil {
		log.Printf("{\"event\":%q,\"level\":\"error\",\"message\":%q}", fields.Event, err.Error())
		return
	}
	log.Print(string(data))
}

func Warn(fields Fields) {
	fields.Level = "warn"
	Event(fields)
}
