package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const contentTypeMsgpack = "application/msgpack"

// respond writes v as msgpack when the client asks for it and as JSON
// otherwise.
func respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if strings.Contains(r.Header.Get("Accept"), contentTypeMsgpack) {
		data, err := msgpack.Marshal(v)
		if err == nil {
			w.Header().Set("Content-Type", contentTypeMsgpack)
			w.WriteHeader(status)
			w.Write(data)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	respond(w, r, apiErr.Status, apiErr)
}
