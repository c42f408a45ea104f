package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/graylogic-mqttlink/internal/journal"
	"github.com/nerrad567/graylogic-mqttlink/internal/session"
)

// publishWaitTimeout bounds how long a publish request waits for the host loop.
const publishWaitTimeout = 5 * time.Second

type endpointResponse struct {
	Host string `json:"host"`
	Port uint16 `json:"port"`
}

type linkResponse struct {
	State         session.State    `json:"state"`
	Connected     bool             `json:"connected"`
	DelayMillis   int64            `json:"delay_ms"`
	Endpoint      endpointResponse `json:"endpoint"`
	PresenceTopic string           `json:"presence_topic,omitempty"`
	Stats         session.Stats    `json:"stats"`
}

// publishRequestBody is the body of POST /publish. Retain defaults to true,
// matching the link's own publishes.
type publishRequestBody struct {
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	Retain  *bool  `json:"retain,omitempty"`
}

type publishResponse struct {
	Topic  string `json:"topic"`
	Bytes  int    `json:"bytes"`
	Retain bool   `json:"retain"`
}

// handleLink returns the supervisor's current view of the connection.
func (s *Server) handleLink(w http.ResponseWriter, _ *http.Request) {
	host, port := s.link.Endpoint()
	writeJSON(w, http.StatusOK, linkResponse{
		State:         s.link.State(),
		Connected:     s.link.IsConnected(),
		DelayMillis:   s.link.CurrentDelay().Milliseconds(),
		Endpoint:      endpointResponse{Host: host, Port: port},
		PresenceTopic: s.link.PresenceTopic(),
		Stats:         s.link.Stats(),
	})
}

// handleLinkEvents returns a page of journal entries, newest first.
// Query parameters: kind, limit, offset.
func (s *Server) handleLinkEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		writeUnavailable(w, "event journal is disabled")
		return
	}

	q := r.URL.Query()
	filter := journal.Filter{Kind: q.Get("kind")}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.events.List(r.Context(), filter)
	if err != nil {
		if errors.Is(err, journal.ErrClosed) {
			writeUnavailable(w, "event journal is closed")
			return
		}
		s.logger.Error("listing link events", "error", err)
		writeInternalError(w, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handlePublish queues a message for the host loop and reports the outcome.
func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var body publishRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := session.ValidateTopic(body.Topic); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	retain := true
	if body.Retain != nil {
		retain = *body.Retain
	}

	ctx, cancel := context.WithTimeout(r.Context(), publishWaitTimeout)
	defer cancel()

	err := s.enqueue(ctx, publishRequest{
		topic:   body.Topic,
		payload: []byte(body.Payload),
		retain:  retain,
	})
	switch {
	case err == nil:
		subject := ""
		if c := claimsFrom(r.Context()); c != nil {
			subject = c.Subject
		}
		s.logger.Debug("API publish accepted", "topic", body.Topic, "bytes", len(body.Payload), "subject", subject)
		writeJSON(w, http.StatusAccepted, publishResponse{
			Topic:  body.Topic,
			Bytes:  len(body.Payload),
			Retain: retain,
		})
	case errors.Is(err, session.ErrNotDelivered):
		writeError(w, http.StatusServiceUnavailable, ErrCodeNotDelivered, "link is down, message dropped")
	case errors.Is(err, session.ErrInvalidTopic), errors.Is(err, session.ErrPayloadTooLarge):
		writeBadRequest(w, err.Error())
	case errors.Is(err, session.ErrPublishFailed):
		s.logger.Warn("API publish failed", "topic", body.Topic, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodePublishFailed, "transport refused the message")
	case errors.Is(err, context.DeadlineExceeded):
		writeUnavailable(w, "link loop did not serve the request in time")
	default:
		s.logger.Error("API publish error", "topic", body.Topic, "error", err)
		writeInternalError(w, "publish failed")
	}
}

// intParam parses an optional non-negative integer query value.
func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrRange
	}
	return n, nil
}
