package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/adtrails/adtrails/internal/svcerrors"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps a svcerrors.Kind to an HTTP status (query -> 404,
// resource -> 503, everything else -> 500) and writes the {error,kind}
// JSON body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	if svcerrors.Is(err, svcerrors.KindQuery) {
		status = http.StatusNotFound
		kind = string(svcerrors.KindQuery)
	} else if svcerrors.Is(err, svcerrors.KindResource) {
		status = http.StatusServiceUnavailable
		kind = string(svcerrors.KindResource)
	} else if svcerrors.Is(err, svcerrors.KindPersistence) {
		kind = string(svcerrors.KindPersistence)
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
