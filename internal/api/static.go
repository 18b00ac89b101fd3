package api

import (
	"embed"

	"github.com/gin-contrib/static"
	"github.com/gin-gonic/gin"
)

//go:embed static/assets
var staticAssets embed.FS

// mountStatusPage serves a small embedded status page at the root of the
// admin server, separate from the JSON surface under /api/v1. It exists so
// an operator pointed at the admin host in a browser sees something other
// than a 404.
func mountStatusPage(r *gin.Engine) {
	fs, err := static.EmbedFolder(staticAssets, "static/assets")
	if err != nil {
		panic("failed to get embedded status page filesystem: " + err.Error())
	}
	r.Use(static.Serve("/", fs))
}
