package api

import (
	"net/http"
	"strings"

	"github.com/jdores/selfserve-egressip/internal/pkg/httputil"
)

type whoamiResponse struct {
	Success  bool    `json:"success"`
	IP       *string `json:"ip"`
	City     *string `json:"city"`
	Country  *string `json:"country"`
	Region   *string `json:"region"`
	Timezone *string `json:"timezone"`
	Colo     *string `json:"colo"`
}

// Whoami echoes the egress IP and geo data the edge attached to the request,
// so users can confirm which location they exit from.
//
//	GET /whoami
func Whoami(w http.ResponseWriter, r *http.Request) {
	header := func(name string) *string {
		if v := r.Header.Get(name); v != "" {
			return &v
		}
		return nil
	}
	httputil.OK(w, whoamiResponse{
		Success:  true,
		IP:       header("CF-Connecting-IP"),
		City:     header("CF-IPCity"),
		Country:  header("CF-IPCountry"),
		Region:   header("CF-Region"),
		Timezone: header("CF-Timezone"),
		Colo:     coloFromRay(r.Header.Get("CF-Ray")),
	})
}

// coloFromRay returns the data center code suffix of a ray id
// ("8a1b2c3d4e5f6a7b-FRA" -> "FRA").
func coloFromRay(ray string) *string {
	i := strings.LastIndexByte(ray, '-')
	if i < 0 || i == len(ray)-1 {
		return nil
	}
	colo := ray[i+1:]
	return &colo
}
