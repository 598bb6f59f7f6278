package httputil

import (
	"fmt"
	"net/http"
	"strconv"
)

// GetLimitParameter reads an optional positive integer query parameter,
// returning def when it is absent. An invalid value gets a 400 and false.
func GetLimitParameter(w http.ResponseWriter, r *http.Request, key string, def int) (int, bool) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return def, true
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		http.Error(w, fmt.Sprintf("%s should be a positive integer", key), http.StatusBadRequest)
		return 0, false
	}
	return limit, true
}
