// Package queue implements the in-memory request/response queues that sit
// between the database loops and the worker pool.
package queue

import "time"

// RequestPacket is one unit of work pulled from the request table. Priority
// and RequestID together form the ordering key for queue_in: lower priority
// values are served first, ties broken by ascending RequestID.
type RequestPacket struct {
	Priority   int
	RequestID  int64
	TypeID     int
	Query      string
	Body       string
	DosCounter int
}

// ResponsePacket carries either the raw, not yet decoded reply body the
// upstream gateway returned for Request, or (with IsError set) the text of a
// builder rejection produced by the DB producer loop, in which case Request
// is the zero value. C6 decodes raw bodies and dispositions both kinds.
type ResponsePacket struct {
	RequestID int64
	IsError   bool
	Body      []byte
	Request   RequestPacket
	DecodedAt time.Time
}
