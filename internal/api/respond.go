package api

import (
	"encoding/json"
	"net/http"

	xerrors "DCAKeeper/internal/errors"
)

type errorBody struct {
	Code     string            `json:"code"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

var statusByCode = map[xerrors.Code]int{
	xerrors.CodeInvalidAmount:    http.StatusUnprocessableEntity,
	xerrors.CodeInvalidIdentity:  http.StatusBadRequest,
	xerrors.CodeUnauthorized:     http.StatusForbidden,
	xerrors.CodeInsufficientFund: http.StatusConflict,
	xerrors.CodeIndexOutOfRange:  http.StatusNotFound,
	xerrors.CodeUpkeepNotNeeded:  http.StatusConflict,
	xerrors.CodeSlippageExceeded: http.StatusBadGateway,
	xerrors.CodeTransferFailed:   http.StatusBadGateway,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	e, ok := xerrors.From(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Code: string(xerrors.CodeUnknown), Message: err.Error()})
		return
	}
	status, ok := statusByCode[e.Code()]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, errorBody{Code: string(e.Code()), Message: e.Message(), Metadata: e.Metadata()})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidAmount, err, "malformed request body")
	}
	return nil
}
