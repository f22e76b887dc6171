package controller

import (
	"net/http"
)

func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]string{"store": "ok"}
	status := http.StatusOK
	if c.App.RedisClient != nil {
		if err := c.App.RedisClient.Health(r.Context()); err != nil {
			out["redis"] = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			out["redis"] = "ok"
		}
	}
	writeJSON(w, status, out)
}
