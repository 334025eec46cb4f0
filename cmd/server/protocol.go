// Package main provides a TCP feed server for DataBass.
package main

import (
	"encoding/json"
	"errors"

	"github.com/LordWolfenstein/databass/core"
	"github.com/LordWolfenstein/databass/db"
)

// Request is one line from the client. Exactly one of Feed, Query, Select,
// Describe or Tables is set.
type Request struct {
	// Feed is wire text, applied under Policy.
	Feed     string         `json:"feed,omitempty"`
	Policy   string         `json:"policy,omitempty"`
	Query    string         `json:"query,omitempty"`
	Select   *SelectRequest `json:"select,omitempty"`
	Describe string         `json:"describe,omitempty"`
	Tables   bool           `json:"tables,omitempty"`
}

// writes reports whether the request can change the store.
func (r Request) writes() bool {
	return r.Feed != "" || r.Query != ""
}

// SelectRequest is the wire form of a structured read.
type SelectRequest struct {
	Table    string         `json:"table"`
	Where    core.Condition `json:"where,omitempty"`
	WhereNot core.Condition `json:"wherenot,omitempty"`
	Columns  []string       `json:"columns,omitempty"`
	Distinct bool           `json:"distinct,omitempty"`
	OrderBy  []string       `json:"order_by,omitempty"`
	Limit    int            `json:"limit,omitempty"`
}

func (r SelectRequest) request() db.SelectRequest {
	return db.SelectRequest{
		Table:    r.Table,
		Where:    r.Where,
		WhereNot: r.WhereNot,
		Columns:  r.Columns,
		Distinct: r.Distinct,
		OrderBy:  r.OrderBy,
		Limit:    r.Limit,
	}
}

// Response represents the server's response to a request.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Kind    string          `json:"kind,omitempty"` // error kind: schema, validation, injection_guard, driver
	Type    string          `json:"type,omitempty"` // "query", "commit", "feed", "tables", "schema" or "auth"
	Result  json.RawMessage `json:"result,omitempty"`
}

// QueryResponse contains tabular query results.
type QueryResponse struct {
	Columns     []string   `json:"columns"`
	Data        [][]string `json:"data"`
	RecordsRead int        `json:"records_read"`
	TimeMs      float64    `json:"time_ms"`
}

// CommitResponse contains mutation operation results.
type CommitResponse struct {
	TablesCreated  int     `json:"tables_created,omitempty"`
	TablesAltered  int     `json:"tables_altered,omitempty"`
	TablesDeleted  int     `json:"tables_deleted,omitempty"`
	RecordsWritten int     `json:"records_written,omitempty"`
	RecordsUpdated int     `json:"records_updated,omitempty"`
	RecordsDeleted int     `json:"records_deleted,omitempty"`
	RowsAffected   int64   `json:"rows_affected,omitempty"`
	TimeMs         float64 `json:"time_ms"`
}

// OutcomeResponse reports one feed operation.
type OutcomeResponse struct {
	Index     int    `json:"index"`
	Operation string `json:"operation"`
	Table     string `json:"table,omitempty"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Kind      string `json:"kind,omitempty"`
}

// FeedResponse reports an applied feed.
type FeedResponse struct {
	Digest     string            `json:"digest"`
	Duplicate  bool              `json:"duplicate,omitempty"`
	RolledBack bool              `json:"rolled_back,omitempty"`
	Seq        int               `json:"seq,omitempty"`
	Outcomes   []OutcomeResponse `json:"outcomes"`
}

// AuthResponse contains authentication result.
type AuthResponse struct {
	Authenticated bool   `json:"authenticated"`
	Identity      string `json:"identity,omitempty"`
	ReadOnly      bool   `json:"read_only,omitempty"`
	ExpiresIn     int    `json:"expires_in,omitempty"` // seconds until expiry
}

// EncodeResponse serializes a Response to JSON with a newline.
func EncodeResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// DecodeRequest parses a JSON request from a byte slice.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, err
	}

	set := 0
	for _, present := range []bool{req.Feed != "", req.Query != "", req.Select != nil, req.Describe != "", req.Tables} {
		if present {
			set++
		}
	}
	if set != 1 {
		return Request{}, errors.New("request must carry exactly one of feed, query, select, describe or tables")
	}
	return req, nil
}

func errorResponse(err error) Response {
	resp := Response{Success: false, Error: err.Error()}
	if kind := core.KindOf(err); kind != core.UnknownKind {
		resp.Kind = kind.String()
	}
	return resp
}

func resultResponse(kind string, v any) Response {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResponse(err)
	}
	return Response{Success: true, Type: kind, Result: data}
}
