package handler

import "net/http"

func Health(w http.ResponseWriter, _ *http.Request) {
	WriteResponse(w, struct {
		Status string `json:"status"`
	}{"ok"}, http.StatusOK)
}
