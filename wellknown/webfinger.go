// Package wellknown implements the discovery endpoints other servers
// use to locate actors on this instance.
package wellknown

import (
	"fmt"
	"net/http"

	"github.com/tinyfed/tinyfed/internal/httpx"
	"github.com/tinyfed/tinyfed/internal/to"
	"github.com/tinyfed/tinyfed/internal/webfinger"
	"github.com/tinyfed/tinyfed/models"
)

type Env struct {
	*models.Env
}

// WebfingerShow serves the JRD document mapping an acct: handle to the
// actor document it names.
func WebfingerShow(env *Env, w http.ResponseWriter, r *http.Request) error {
	acct, err := webfinger.Parse(r.URL.Query().Get("resource"))
	if err != nil {
		return httpx.Error(http.StatusBadRequest, err)
	}
	if acct.Host != "" && acct.Host != env.Domain {
		return httpx.Error(http.StatusNotFound, fmt.Errorf("%s is not served here", acct))
	}
	actor, err := models.NewActors(env.DB).Find(acct.User)
	if err != nil {
		return httpx.Error(http.StatusNotFound, err)
	}

	w.Header().Set("Content-Type", "application/jrd+json")
	return to.JSON(w, webfinger.Webfinger{
		Subject: "acct:" + actor.Username + "@" + env.Domain,
		Aliases: []string{actor.ID},
		Links: []webfinger.Link{
			{
				Rel:  "self",
				Type: "application/activity+json",
				Href: actor.ID,
			},
			{
				Rel:  "http://webfinger.net/rel/profile-page",
				Type: "text/html",
				Href: actor.ID,
			},
		},
	})
}
