package http

import "lsmkv/pkg/store"

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates a write completed successfully.
	StatusSuccess Status = "ok"
)

// Response is the health-check body.
type Response struct {
	Status Status `json:"status"`
}

type PutResponse struct {
	Status Status `json:"status"`
	Key    string `json:"key"`
	Value  string `json:"value"`
}

// GetResponse reports a lookup; Value is only set when Found.
type GetResponse struct {
	Found bool    `json:"found"`
	Key   string  `json:"key"`
	Value *string `json:"value,omitempty"`
}

type StatsResponse struct {
	store.Stats
	NumSSTFiles int `json:"num_sst_files"`
}

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type KeysResponse struct {
	Keys    []KeyValue `json:"keys"`
	Page    int        `json:"page"`
	PerPage int        `json:"per_page"`
	Total   int        `json:"total"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewPutResponse(key, value string) PutResponse {
	return PutResponse{Status: StatusSuccess, Key: key, Value: value}
}

func NewGetResponse(key, value string, found bool) GetResponse {
	resp := GetResponse{Found: found, Key: key}
	if found {
		resp.Value = &value
	}
	return resp
}

func NewStatsResponse(st store.Stats) StatsResponse {
	return StatsResponse{Stats: st, NumSSTFiles: st.SSTableCount}
}

func NewErrorResponse(err string) ErrorResponse {
	return ErrorResponse{Error: err}
}
